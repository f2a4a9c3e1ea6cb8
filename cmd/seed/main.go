// cmd/seed 从YAML文件导入解说员，已存在的记录按ID更新。
//
// 用法:
//
//	seed commentators.yaml
//	seed --deactivate <id>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/config"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/database"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/logging"
	"github.com/SlpAus/commentator-ranking-backend/internal/platform/startup"
	"github.com/SlpAus/commentator-ranking-backend/internal/user"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// seedFile 是导入文件的结构
type seedFile struct {
	Commentators []seedCommentator `yaml:"commentators"`
}

type seedCommentator struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description *string `yaml:"description"`
	ImageURL    *string `yaml:"image_url"`
	Active      *bool   `yaml:"active"`
}

// parseSeed 解析导入文件，active 缺省为 true
func parseSeed(r io.Reader) ([]commentator.Commentator, error) {
	var f seedFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("解析导入文件失败: %w", err)
	}

	seen := make(map[string]bool, len(f.Commentators))
	out := make([]commentator.Commentator, 0, len(f.Commentators))
	for i, c := range f.Commentators {
		if c.ID == "" || c.Name == "" {
			return nil, fmt.Errorf("第 %d 条记录缺少 id 或 name", i+1)
		}
		if seen[c.ID] {
			return nil, fmt.Errorf("重复的解说员ID: %s", c.ID)
		}
		seen[c.ID] = true

		active := true
		if c.Active != nil {
			active = *c.Active
		}
		out = append(out, commentator.Commentator{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			ImageURL:    c.ImageURL,
			IsActive:    active,
		})
	}
	return out, nil
}

func main() {
	var deactivate string

	root := &cobra.Command{
		Use:           "seed [file]",
		Short:         "导入解说员数据",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if err := logging.Setup(cfg.Log, os.Stderr); err != nil {
				return err
			}

			// 导入不需要通知和频率限制
			cfg.Notifier.Driver = config.NotifierLocal
			cfg.Votes.RateLimit.PerWindow = 0

			ctx := cmd.Context()
			conns, err := database.Connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer conns.Close()

			modules, err := startup.InitializeApplication(ctx, conns.DB, user.DefaultCacheSize)
			if err != nil {
				return err
			}

			if deactivate != "" {
				if err := modules.Commentators.SetActive(ctx, deactivate, false); err != nil {
					return err
				}
				slog.Info("解说员已设为不可投票", "id", deactivate)
			}
			if len(args) == 0 {
				return nil
			}
			return importFile(ctx, modules.Commentators, args[0])
		},
	}
	root.Flags().StringVar(&deactivate, "deactivate", "", "把指定ID的解说员设为不可投票")

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func importFile(ctx context.Context, repo *commentator.Repository, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	commentators, err := parseSeed(f)
	if err != nil {
		return err
	}
	if err := repo.Upsert(ctx, commentators); err != nil {
		return fmt.Errorf("写入解说员失败: %w", err)
	}
	slog.Info("导入完成", "count", len(commentators), "file", path)
	return nil
}
