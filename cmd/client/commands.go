package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/SlpAus/commentator-ranking-backend/internal/client"
	"github.com/SlpAus/commentator-ranking-backend/internal/commentator"
	"github.com/SlpAus/commentator-ranking-backend/internal/vote"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// ─── list ─────────────────────────────────────────────────────────────────────

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "显示当前排名",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			standings, err := e.api.FetchStandings(ctx)
			if err != nil {
				return err
			}
			printRanking(os.Stdout, commentator.Rank(standings))
			return nil
		},
	}
}

// ─── vote ─────────────────────────────────────────────────────────────────────

func voteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <commentator-id> <up|down>",
		Short: "对一个解说员投票，重复投票会改为新的取值",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			voteType, err := vote.ParseType(args[1])
			if err != nil {
				return err
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			s, err := e.newSession(ctx, nil)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := castAndReport(ctx, s, args[0], voteType); err != nil {
				return err
			}
			printRanking(os.Stdout, s.Ranked())
			return nil
		},
	}
}

// castAndReport 投票，并在投票被本地忽略时给出原因
func castAndReport(ctx context.Context, s *client.Session, id string, voteType vote.Type) error {
	snap := s.Snapshot()
	if snap.State == client.StateError {
		return fmt.Errorf("无法加载解说员列表: %w", snap.Err)
	}
	found := false
	for _, st := range snap.Standings {
		if st.ID != id {
			continue
		}
		found = true
		if !st.IsActive {
			return fmt.Errorf("解说员 %s 已不可投票", st.Name)
		}
	}
	if !found {
		return fmt.Errorf("找不到解说员 %q", id)
	}
	return s.Vote(ctx, id, voteType)
}

// ─── play ─────────────────────────────────────────────────────────────────────

func playCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "交互式投票，每行输入 \"up <id>\" 或 \"down <id>\"，输入 list 查看排名，refresh 重新拉取",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			s, err := e.newSession(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer s.Close()

			printRanking(os.Stdout, s.Ranked())
			return play(cmd.Context(), s, os.Stdin, os.Stdout)
		},
	}
}

func play(ctx context.Context, s *client.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		switch {
		case len(fields) == 0:
			continue
		case fields[0] == "list":
			printRanking(out, s.Ranked())
			continue
		case fields[0] == "refresh":
			if err := s.Refresh(ctx); err != nil {
				fmt.Fprintln(out, "刷新失败:", err)
				continue
			}
			printRanking(out, s.Ranked())
			continue
		case fields[0] == "quit" || fields[0] == "exit":
			return nil
		case len(fields) != 2:
			fmt.Fprintln(out, "格式: up <id> | down <id> | list | refresh | quit")
			continue
		}

		voteType, err := vote.ParseType(fields[0])
		if err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		if err := castAndReport(ctx, s, fields[1], voteType); err != nil {
			fmt.Fprintln(out, err)
			continue
		}
		printRanking(out, s.Ranked())
	}
	return scanner.Err()
}

// ─── watch ────────────────────────────────────────────────────────────────────

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "持续显示排名，其他用户投票后按缓存时间自动刷新",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()

			changes := make(chan struct{}, 1)
			notify := func() {
				select {
				case changes <- struct{}{}:
				default:
				}
			}

			s, err := e.newSession(cmd.Context(), notify)
			if err != nil {
				return err
			}

			grp, grpCtx := errgroup.WithContext(cmd.Context())
			grp.Go(func() error {
				<-grpCtx.Done()
				return s.Close()
			})
			grp.Go(func() error {
				return watch(grpCtx, s, changes, os.Stdout, os.Stderr)
			})
			return grp.Wait()
		},
	}
}

// watchRetryDelay 是拉取失败后第一次自动重试前的等待时间
var watchRetryDelay = time.Second

// watch 在每次本地数据变化后重新输出排名。
// 拉取失败时按退避间隔自动重试；广播断开由会话自己重连。
func watch(ctx context.Context, s *client.Session, changes <-chan struct{}, out, errOut io.Writer) error {
	delay := watchRetryDelay
	var retry <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry:
			retry = nil
			if err := s.Refresh(ctx); err != nil {
				slog.Debug("自动重试拉取失败", "error", err)
			}
		case <-changes:
			snap := s.Snapshot()
			if snap.State == client.StateError {
				fmt.Fprintln(errOut, "刷新失败:", snap.Err)
				if retry == nil && !errors.Is(snap.Err, client.ErrStreamClosed) {
					retry = time.After(delay)
					delay = min(delay*2, 30*time.Second)
				}
				continue
			}
			delay = watchRetryDelay
			fmt.Fprintf(out, "\n更新于 %s\n", snap.LastUpdate.Format("15:04:05"))
			printRanking(out, commentator.Rank(snap.Standings))
		}
	}
}

// ─── auth ─────────────────────────────────────────────────────────────────────

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "显示当前会话的用户",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			u, err := e.api.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if u == nil {
				fmt.Println("未登录，首次投票时会自动匿名登录")
				return nil
			}
			name := "(匿名)"
			if u.DisplayName != nil {
				name = *u.DisplayName
			}
			fmt.Printf("%s %s\n", u.ID, name)
			return nil
		},
	}
}

func nameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name <display-name>",
		Short: "为当前会话认领一个显示名",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			u, err := e.api.CurrentUser(ctx)
			if err != nil {
				return err
			}
			if u == nil {
				if _, err := e.api.SignInAnonymously(ctx); err != nil {
					return err
				}
			}
			u, err = e.api.ClaimDisplayName(ctx, args[0])
			var statusErr *client.StatusError
			if errors.As(err, &statusErr) {
				return errors.New(statusErr.Message)
			}
			if err != nil {
				return err
			}
			fmt.Printf("已认领显示名 %s\n", *u.DisplayName)
			return nil
		},
	}
}

func signoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "结束当前会话",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			defer e.Close()
			ctx, cancel := requestContext(cmd)
			defer cancel()

			if err := e.api.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("已登出")
			return nil
		},
	}
}

// ─── output ───────────────────────────────────────────────────────────────────

func voteMark(t vote.Type) string {
	switch t {
	case vote.Up:
		return "▲"
	case vote.Down:
		return "▼"
	}
	return ""
}

func printRanking(w io.Writer, ranked []commentator.Ranked) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\t解说员\t得分\t投票人数\t我的投票\t")
	for _, r := range ranked {
		rank := fmt.Sprint(r.Rank)
		if !r.IsActive {
			rank = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t\n", rank, r.ID, r.Name, r.VoteSum, r.TotalVotes, voteMark(r.UserVote))
	}
	tw.Flush()
}

func printSharePrompt(w io.Writer, baseURL string) {
	links := client.BuildShareLinks(baseURL, "我刚给最差的板球解说员投了票，你也来试试")
	fmt.Fprintln(w, "\n你已经给好几位解说员投过票了，分享给朋友吧：")
	fmt.Fprintln(w, "  Twitter: ", links.Twitter)
	fmt.Fprintln(w, "  WhatsApp:", links.WhatsApp)
}
