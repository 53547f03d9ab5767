package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"students-timetable/internal/adapters/exporter"
	"students-timetable/internal/domain"
	"students-timetable/internal/pkg/term"
	"students-timetable/internal/server"
)

const usage = `Использование: client [-server URL] <команда> [аргументы]

Команды:
  status              состояние движка
  refresh [-wait]     запустить цикл обновления
  group <номер>       расписание группы
  timetable           все расписание таблицей`

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type client struct {
	baseURL  string
	http     *http.Client
	out      io.Writer
	width    int
	pollWait time.Duration
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	serverAddr := fs.String("server", "http://localhost:8080", "Server address")
	fs.SetOutput(out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}

	c := &client{
		baseURL:  strings.TrimRight(*serverAddr, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		out:      out,
		width:    term.Width(),
		pollWait: 2 * time.Second,
	}

	switch rest[0] {
	case "status":
		return c.status(ctx)
	case "refresh":
		rfs := flag.NewFlagSet("refresh", flag.ContinueOnError)
		wait := rfs.Bool("wait", false, "ждать завершения цикла")
		rfs.SetOutput(out)
		if err := rfs.Parse(rest[1:]); err != nil {
			return err
		}
		return c.refresh(ctx, *wait)
	case "group":
		if len(rest) < 2 {
			return errors.New("укажите номер группы")
		}
		return c.group(ctx, rest[1])
	case "timetable":
		return c.timetable(ctx)
	default:
		return fmt.Errorf("неизвестная команда %q\n\n%s", rest[0], usage)
	}
}

func (c *client) status(ctx context.Context) error {
	var st server.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", http.StatusOK, &st); err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Состояние: %s\n", st.State)
	fmt.Fprintf(c.out, "Версия снимка: %d\n", st.Version)
	if len(st.Dates) > 0 {
		fmt.Fprintf(c.out, "Дни: %s\n", strings.Join(st.Dates, ", "))
	}
	if st.WeekInterval != "" {
		fmt.Fprintf(c.out, "Неделя: %s\n", st.WeekInterval)
	}
	if st.LastReport != nil {
		fmt.Fprintf(c.out, "Последний цикл: %s (%s)\n", st.LastReport.Outcome, st.LastReport.FinishedAt.Format(time.DateTime))
		if st.LastReport.Error != "" {
			fmt.Fprintf(c.out, "Ошибка: %s\n", st.LastReport.Error)
		}
	}
	return nil
}

func (c *client) refresh(ctx context.Context, wait bool) error {
	var resp server.RefreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/refresh", http.StatusAccepted, &resp); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Цикл запущен: %s\n", resp.CycleID)
	if !wait {
		return nil
	}

	ticker := time.NewTicker(c.pollWait)
	defer ticker.Stop()
	for {
		var rec server.CycleRecord
		if err := c.do(ctx, http.MethodGet, "/api/v1/cycles/"+resp.CycleID, http.StatusOK, &rec); err != nil {
			return err
		}
		if rec.Status != server.CycleStatusRunning {
			fmt.Fprintf(c.out, "Статус цикла: %s\n", rec.Status)
			if rec.Report != nil {
				fmt.Fprintf(c.out, "Итог: %s, версия %d\n", rec.Report.Outcome, rec.Report.Version)
				if len(rec.Report.ChangedGroups) > 0 {
					fmt.Fprintf(c.out, "Изменены группы: %s\n", strings.Join(rec.Report.ChangedGroups, ", "))
				}
				if rec.Report.Error != "" {
					return fmt.Errorf("цикл завершился с ошибкой: %s", rec.Report.Error)
				}
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *client) group(ctx context.Context, groupID string) error {
	var resp server.GroupResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/groups/"+groupID, http.StatusOK, &resp); err != nil {
		return err
	}
	day := domain.DaySnapshot{
		Date:   resp.Group.Date,
		Groups: map[string]domain.GroupSchedule{resp.Group.GroupID: resp.Group},
	}
	return exporter.NewConsoleExporter(c.width).Export(c.out, domain.TimetableSnapshot{Days: []domain.DaySnapshot{day}})
}

func (c *client) timetable(ctx context.Context) error {
	var snap domain.TimetableSnapshot
	if err := c.do(ctx, http.MethodGet, "/api/v1/timetable", http.StatusOK, &snap); err != nil {
		return err
	}
	return exporter.NewConsoleExporter(c.width).Export(c.out, snap)
}

func (c *client) do(ctx context.Context, method, path string, expect int, v any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("не удалось создать запрос: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("не удалось отправить запрос: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != expect {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("сервер вернул статус %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("сервер вернул статус: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("не удалось декодировать ответ: %w", err)
	}
	return nil
}
