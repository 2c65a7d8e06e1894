package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"CallBox/cache"

	"github.com/spf13/cobra"
)

var redisFlush bool

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功并进行基本读写操作，--flush 清除当前存储根目录的录音快照缓存。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)

		if err := cache.ConnectRedis(cfg); err != nil {
			log.Fatalf("无法连接到Redis: %v", err)
		}
		defer func() {
			if err := cache.CloseRedis(); err != nil {
				log.Printf("关闭Redis连接时发生错误: %v", err)
			}
		}()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := cache.CheckRedis(ctx); err != nil {
			log.Fatalf("Redis操作测试失败: %v", err)
		}
		fmt.Println("Redis基本操作测试成功！")

		if redisFlush {
			c := cache.NewRecordingCache(cfg.StorageRoot, cfg.CacheTTL)
			if err := c.Invalidate(ctx); err != nil {
				log.Fatalf("清除快照缓存失败: %v", err)
			}
			fmt.Printf("已清除 %s 的录音快照缓存 (namespace %s)\n", cfg.StorageRoot, cache.Namespace(cfg.StorageRoot))
		}
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
	redisCmd.Flags().BoolVar(&redisFlush, "flush", false, "清除录音快照缓存和刷新锁")
}
