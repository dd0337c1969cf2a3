package commands

import (
	"fmt"
	"strconv"
	"time"

	"hwtrack-backend/internal/application"
	"hwtrack-backend/internal/components/telemetry"
	"hwtrack-backend/internal/homework"
	"hwtrack-backend/internal/service"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	queryAccount         *string
	querySecret          *string
	queryStatus          *string
	queryKeywords        *[]string
	queryIgnoreExpired   *int
	queryIgnoreUnexpired *int
	queryCached          *bool
	queryJson            *bool
)

func init() {
	flags := queryCmd.Flags()
	queryAccount = flags.StringP("account", "a", "", "The account id to log in with.")
	querySecret = flags.StringP("secret", "s", "", "The password, the derived default is used when empty.")
	queryStatus = flags.String("status", string(homework.FinishUnfinished), "One of all, finished, unfinished.")
	queryKeywords = flags.StringSliceP("keyword", "k", nil, "Only keep courses whose name contains one of these, repeatable.")
	queryIgnoreExpired = flags.Int("ignore-expired", homework.DefaultIgnoreExpiredDays, "Drop assignments overdue by more than this many days.")
	queryIgnoreUnexpired = flags.Int("ignore-unexpired", homework.DefaultIgnoreUnexpiredDays, "Drop assignments due more than this many days ahead.")
	queryCached = flags.Bool("cached", false, "Answer from the cache without logging in.")
	queryJson = flags.Bool("json", false, "Print the response as JSON.")
	queryCmd.MarkFlagRequired("account")

	rootCmd.AddCommand(queryCmd)
}

func queryFilter() homework.Filter {
	return homework.Filter{
		Status:              homework.FinishStatus(*queryStatus),
		CourseKeywords:      *queryKeywords,
		IgnoreExpiredDays:   queryIgnoreExpired,
		IgnoreUnexpiredDays: queryIgnoreUnexpired,
	}
}

var queryCmd = &cobra.Command{
	Use:   "query --account <id> [--secret <password>]",
	Short: "Logs into the portal, fetches every assignment of the current term and caches the result.",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := queryFilter()
		if err := filter.Validate(); err != nil {
			return err
		}

		var res service.Response
		if *queryCached {
			store, clock, err := openStore()
			if err != nil {
				return err
			}
			svc := service.NewService(noPortal{}, store, clock)
			cached, ok := svc.Cached(*queryAccount, filter)
			if !ok {
				return fmt.Errorf("no cache found for %s", *queryAccount)
			}
			res = cached
		} else {
			app, err := application.New(cmd.Context(), loadedConfig, telemetry.SlogAPI{})
			if err != nil {
				return err
			}
			defer app.Close()

			res, err = app.Service.Refresh(cmd.Context(), service.Request{
				AccountID: *queryAccount,
				Secret:    *querySecret,
				Filter:    &filter,
			})
			if err != nil {
				return err
			}
		}

		if *queryJson {
			return printJSON(res)
		}
		renderAssignments(res)
		return nil
	},
}

func formatDue(a homework.Assignment) string {
	if a.DueAt != nil {
		return a.DueAt.Format("2006-01-02 15:04")
	}
	if a.DueRaw != "" {
		return a.DueRaw
	}
	return "-"
}

func formatDaysLeft(a homework.Assignment) string {
	switch {
	case a.DaysLeft == nil:
		return "-"
	case a.IsOverdue:
		return "overdue"
	case a.IsUrgent:
		return strconv.Itoa(*a.DaysLeft) + " (urgent)"
	default:
		return strconv.Itoa(*a.DaysLeft)
	}
}

func renderAssignments(res service.Response) {
	t := newTable()
	t.AppendHeader(table.Row{"Course", "Title", "Kind", "Due", "Days left", "Status", "Submitted", "Score"})
	for _, a := range res.Data {
		t.AppendRow(table.Row{
			a.CourseName,
			a.Title,
			a.Kind,
			formatDue(a),
			formatDaysLeft(a),
			a.Status,
			fmt.Sprintf("%d/%d", a.SubmittedCount, a.TotalCount),
			a.Score,
		})
	}

	s := res.Summary
	footer := fmt.Sprintf(
		"term %s: %d total, %d unsubmitted, %d overdue, %d urgent",
		res.TermCode, s.Total, s.Unsubmitted, s.Overdue, s.Urgent,
	)
	if res.Cached && res.AgeMinutes != nil {
		footer += fmt.Sprintf(" (cached %s ago)", formatAge(time.Duration(*res.AgeMinutes)*time.Minute))
	}
	t.AppendFooter(table.Row{footer})
	t.Render()
}
