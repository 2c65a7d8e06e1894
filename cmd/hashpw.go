package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	"CallBox/core/auth"

	"github.com/spf13/cobra"
)

var hashpwCmd = &cobra.Command{
	Use:   "hashpw [password]",
	Short: "生成 ADMIN_PASSWORD_HASH",
	Long:  `为管理员密码生成 bcrypt 哈希；不带参数时从标准输入读取一行。`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var password string
		if len(args) == 1 {
			password = args[0]
		} else {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				log.Fatalf("读取密码失败: %v", err)
			}
			password = strings.TrimRight(line, "\r\n")
		}

		hash, err := auth.HashPassword(password)
		if err != nil {
			log.Fatalf("生成哈希失败: %v", err)
		}
		fmt.Println(hash)
	},
}

func init() {
	rootCmd.AddCommand(hashpwCmd)
}
