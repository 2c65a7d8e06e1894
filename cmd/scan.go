package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"CallBox/core/contacts"
	"CallBox/core/permission"
	"CallBox/core/recording"
	"CallBox/model"
	"CallBox/server"

	"github.com/spf13/cobra"
)

var (
	scanRoot         string
	scanJSON         bool
	scanFolders      bool
	scanMockContacts bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "扫描录音目录并打印结果",
	Long:  `检查存储访问权限，扫描全部候选目录，打印找到的录音（或按联系人分组）。不写数据库。`,
	Run: func(cmd *cobra.Command, args []string) {
		if scanRoot != "" {
			cfg.StorageRoot = scanRoot
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		scanner := server.NewScanner(cfg)
		access := permission.NewChecker(scanner).Check(ctx)
		recs, report, err := scanner.Scan(ctx)
		if err != nil {
			log.Fatalf("扫描失败: %v", err)
		}

		var book []model.Contact
		if scanMockContacts {
			book, _ = contacts.MockProvider{}.Contacts(ctx)
			for _, r := range recs {
				if c, ok := contacts.FindByPhone(book, r.PhoneNumber); ok {
					r.ContactName = c.Name
				}
			}
		}

		if scanJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(map[string]interface{}{
				"storage":    access,
				"report":     report,
				"recordings": recs,
			}); err != nil {
				log.Fatalf("输出失败: %v", err)
			}
			return
		}
		writeScan(os.Stdout, access, report, recs, book, cfg.Location(), scanFolders)
	},
}

func writeScan(w io.Writer, access permission.Result, report recording.ScanReport, recs []*model.Recording, book []model.Contact, loc *time.Location, folders bool) {
	fmt.Fprintf(w, "存储根目录: %s\n", report.Root)
	fmt.Fprintf(w, "访问状态: %s", access.Status)
	if access.Reason != "" {
		fmt.Fprintf(w, " (%s)", access.Reason)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "候选目录: %d, 可访问: %d, 录音: %d, 未解析文件名: %d, 耗时: %s\n",
		len(report.Tried), len(report.Accessible), len(recs), report.Unparsed, report.Took.Round(time.Millisecond))
	for _, dir := range report.Accessible {
		fmt.Fprintf(w, "  + %s\n", dir)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  ! %s\n", e)
	}
	fmt.Fprintln(w)

	if folders {
		for _, f := range recording.GroupFolders(recs, book) {
			fmt.Fprintf(w, "%s (%d)\n", f.Name, len(f.Recordings))
			for _, r := range f.Recordings {
				writeRecording(w, "  ", r, loc)
			}
		}
		return
	}
	for _, r := range recs {
		writeRecording(w, "", r, loc)
	}
}

func writeRecording(w io.Writer, indent string, r *model.Recording, loc *time.Location) {
	fmt.Fprintf(w, "%s%-24s %-9s %s  %5s  %9s  %s\n",
		indent,
		recording.FormatTimestamp(r.Timestamp, loc),
		r.Direction,
		r.DisplayName(),
		recording.FormatDuration(r.Duration),
		recording.FormatFileSize(r.Size),
		r.FilePath)
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanRoot, "root", "", "覆盖 STORAGE_ROOT")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "以 JSON 输出")
	scanCmd.Flags().BoolVar(&scanFolders, "folders", false, "按联系人分组")
	scanCmd.Flags().BoolVar(&scanMockContacts, "mock-contacts", false, "用内置示例联系人解析名称")
}
