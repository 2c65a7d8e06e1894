package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"CallBox/core/recording"
	"CallBox/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "录音归档存储桶管理",
	Long:  `查看和管理 MinIO 中归档的录音，支持列出文件、查看统计信息和按前缀删除。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}
		archive := storage.NewArchive(nil, cfg.MinioBucket)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		if minioDelete {
			if minioPrefix == "" {
				log.Fatal("删除操作需要指定目录前缀")
			}
			n, err := archive.DeletePrefix(ctx, minioPrefix)
			if err != nil {
				log.Fatalf("删除目录失败: %v", err)
			}
			fmt.Printf("已删除 %d 个对象 (前缀: %s)\n", n, minioPrefix)
			return
		}

		objects, stats, err := archive.List(ctx, minioPrefix, minioRecursive || minioStats)
		if err != nil {
			log.Fatalf("列出文件失败: %v", err)
		}

		fmt.Printf("\n存储桶: %s  前缀: %q\n", cfg.MinioBucket, minioPrefix)
		fmt.Printf("对象数量: %d\n", stats.TotalObjects)
		fmt.Printf("总大小: %s\n", recording.FormatFileSize(stats.TotalSize))
		if !stats.LastModified.IsZero() {
			fmt.Printf("最后修改时间: %s\n", stats.LastModified.Format(time.RFC3339))
		}
		if minioStats {
			return
		}

		fmt.Println()
		for _, obj := range objects {
			fmt.Printf("  %-70s %10s  %s\n", obj.Key, recording.FormatFileSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04:05"))
		}
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "recordings/", "按前缀过滤文件或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "只显示统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出子目录")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有文件")

	minioCmd.Example = `  # 列出归档目录
  callbox minio

  # 某个号码的全部归档
  callbox minio -r -p "recordings/5551234567/"

  # 统计信息
  callbox minio -s

  # 删除某个号码的归档
  callbox minio -d -p "recordings/5551234567/"`
}
