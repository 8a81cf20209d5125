package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"overload-gateway/gateway/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a running gateway's system metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), v.GetDuration("status.timeout"))
			defer cancel()

			view, err := fetchView(ctx, v.GetString("status.addr"))
			if err != nil {
				return err
			}
			return renderView(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().String("addr", "http://localhost:3005", "gateway base URL")
	cmd.Flags().Duration("timeout", 5*time.Second, "request timeout")
	_ = v.BindPFlag("status.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("status.timeout", cmd.Flags().Lookup("timeout"))
	return cmd
}

func fetchView(ctx context.Context, addr string) (domain.SystemView, error) {
	u := strings.TrimRight(addr, "/") + "/system/metrics"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.SystemView{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.SystemView{}, fmt.Errorf("get %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.SystemView{}, fmt.Errorf("get %s: status %d", u, resp.StatusCode)
	}
	var view domain.SystemView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return domain.SystemView{}, fmt.Errorf("decode system view: %w", err)
	}
	return view, nil
}

func renderView(w io.Writer, v domain.SystemView) error {
	sys := table.NewWriter()
	sys.SetOutputMirror(w)
	sys.SetStyle(table.StyleRounded)
	sys.SetTitle("System")
	sys.AppendHeader(table.Row{"Status", "Instances", "CPU", "Memory", "Breaker", "Req/s", "Accepted", "Rejected", "Queued"})
	sys.AppendRow(table.Row{
		v.System.PredictedStatus,
		v.System.InstanceCount,
		v.System.CPULoad,
		v.System.MemoryUsage,
		v.Breaker,
		v.Traffic.ReqPerSec,
		v.Traffic.Accepted,
		v.Traffic.Rejected,
		v.Traffic.Queued,
	})
	sys.Render()

	res := table.NewWriter()
	res.SetOutputMirror(w)
	res.SetStyle(table.StyleRounded)
	res.SetTitle("Resources")
	res.AppendHeader(table.Row{"Tokens", "Capacity", "Refill", "Active", "Max", "Tenants", "HIGH", "MEDIUM", "LOW"})
	res.AppendRow(table.Row{
		fmt.Sprintf("%.1f", v.Resources.Tokens),
		v.Resources.BucketCapacity,
		v.Resources.RefillRate,
		v.Resources.ActiveUsers,
		v.Resources.MaxUsers,
		v.Resources.ActiveTenants,
		v.Queues.High,
		v.Queues.Medium,
		v.Queues.Low,
	})
	res.Render()

	be := table.NewWriter()
	be.SetOutputMirror(w)
	be.SetStyle(table.StyleRounded)
	be.SetTitle("Backends")
	be.AppendHeader(table.Row{"URL", "Healthy", "Requests", "Rejected", "Active", "Latency ms", "CPU", "Memory", "Load"})
	healthy := 0
	for _, b := range v.System.Backends {
		if b.Healthy {
			healthy++
		}
		be.AppendRow(table.Row{
			b.URL, b.Healthy, b.Requests, b.Rejected, b.Active,
			fmt.Sprintf("%.1f", b.AvgLatency), b.CPU, b.Memory, b.LoadStatus,
		})
	}
	be.AppendFooter(table.Row{"", fmt.Sprintf("%d/%d", healthy, len(v.System.Backends))})
	be.Render()

	if len(v.RecentAlerts) > 0 {
		al := table.NewWriter()
		al.SetOutputMirror(w)
		al.SetStyle(table.StyleRounded)
		al.SetTitle("Recent alerts")
		al.AppendHeader(table.Row{"Time", "Level", "Message"})
		for _, a := range v.RecentAlerts {
			al.AppendRow(table.Row{a.Timestamp.Format(time.TimeOnly), a.Type, a.Message})
		}
		al.Render()
	}
	return nil
}
