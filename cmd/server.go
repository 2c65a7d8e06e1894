package cmd

import (
	"CallBox/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 CallBox 服务器",
	Long:  `扫描录音目录并启动 HTTP API、WebSocket 事件推送、目录监听和自动清理任务`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
