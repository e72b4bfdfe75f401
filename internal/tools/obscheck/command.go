package obscheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/resumekit/resumekit/internal/tools/common"
	"github.com/resumekit/resumekit/internal/tools/loadgen"
	"github.com/resumekit/resumekit/internal/tools/ui"
)

// Datasource proxy slots in the local Grafana provisioning: 1=Prometheus,
// 2=Loki, 3=Tempo.
const (
	prometheusDatasource = 1
	lokiDatasource       = 2
	tempoDatasource      = 3
)

type options struct {
	grafanaURL      string
	grafanaUser     string
	grafanaPassword string
	serviceName     string
	window          time.Duration
	ci              bool
	baseURL         string
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "obscheck", Short: "Verify metrics, traces and logs correlation"}
	cmd.PersistentFlags().StringVar(&opts.grafanaURL, "grafana-url", "http://localhost:3000", "Grafana base URL")
	cmd.PersistentFlags().StringVar(&opts.grafanaUser, "grafana-user", "admin", "Grafana username")
	cmd.PersistentFlags().StringVar(&opts.grafanaPassword, "grafana-password", "admin", "Grafana password")
	cmd.PersistentFlags().StringVar(&opts.serviceName, "service-name", "resumekit", "OTel service name")
	cmd.PersistentFlags().DurationVar(&opts.window, "window", 20*time.Minute, "query lookback window")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.PersistentFlags().StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "API base URL for traffic")
	cmd.AddCommand(newRunCommand(opts))
	return cmd
}

func newRunCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Generate traffic and validate exemplar->trace->log path",
		RunE: func(cmd *cobra.Command, args []string) error {
			details, err := execute(opts, "obscheck run", func(ctx context.Context) ([]string, error) {
				gc := &grafanaClient{opts: *opts, http: &http.Client{Timeout: 20 * time.Second}}
				return gc.checkPipeline(ctx)
			})
			if opts.ci {
				common.PrintCIResult(err == nil, "obscheck run", details, err)
			}
			if err != nil {
				os.Exit(4)
			}
			return nil
		},
	}
}

func execute(opts *options, title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	if opts.ci {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()
		return fn(ctx)
	}
	return ui.Run(title, fn)
}

type grafanaClient struct {
	opts options
	http *http.Client
}

// checkPipeline drives traffic through the API, then walks a single request
// across the three backends: Prometheus exemplar -> Tempo trace -> Loki log.
func (gc *grafanaClient) checkPipeline(ctx context.Context) ([]string, error) {
	traffic, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL:     gc.opts.baseURL,
		Profile:     "mixed",
		Duration:    6 * time.Second,
		RPS:         20,
		Concurrency: 6,
		Seed:        42,
	})
	if err != nil {
		return nil, err
	}
	details := []string{fmt.Sprintf("traffic generated total=%d failures=%d", traffic.TotalRequests, traffic.Failures)}

	// Give the collector pipeline time to export and index.
	time.Sleep(8 * time.Second)

	traceID, err := gc.exemplarTraceID(ctx)
	if err != nil {
		return details, err
	}
	details = append(details, "exemplar trace_id="+traceID)

	if err := gc.tempoHasTrace(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "tempo trace lookup: ok")

	if err := gc.lokiHasTraceLogs(ctx, traceID); err != nil {
		return details, err
	}
	details = append(details, "loki trace correlation: ok")
	return details, nil
}

func (gc *grafanaClient) proxyGET(ctx context.Context, datasource int, path string, out any) error {
	u, err := url.Parse(gc.opts.grafanaURL)
	if err != nil {
		return err
	}
	u.Path = strings.TrimRight(u.Path, "/") + fmt.Sprintf("/api/datasources/proxy/%d%s", datasource, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.SetBasicAuth(gc.opts.grafanaUser, gc.opts.grafanaPassword)
	resp, err := gc.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("grafana request failed: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (gc *grafanaClient) exemplarTraceID(ctx context.Context) (string, error) {
	end := time.Now()
	start := end.Add(-gc.opts.window)
	path := fmt.Sprintf("/api/v1/query_exemplars?query=auth_request_duration_seconds_bucket&start=%d&end=%d", start.Unix(), end.Unix())

	var payload struct {
		Data []struct {
			Exemplars []struct {
				Labels map[string]string `json:"labels"`
			} `json:"exemplars"`
		} `json:"data"`
	}
	if err := gc.proxyGET(ctx, prometheusDatasource, path, &payload); err != nil {
		return "", err
	}
	for _, series := range payload.Data {
		for _, ex := range series.Exemplars {
			if tid := ex.Labels["trace_id"]; len(tid) == 32 {
				return tid, nil
			}
		}
	}
	return "", fmt.Errorf("no trace_id exemplar found")
}

func (gc *grafanaClient) tempoHasTrace(ctx context.Context, traceID string) error {
	var payload struct {
		Batches []json.RawMessage `json:"batches"`
	}
	if err := gc.proxyGET(ctx, tempoDatasource, "/api/traces/"+traceID, &payload); err != nil {
		return err
	}
	if len(payload.Batches) == 0 {
		return fmt.Errorf("tempo trace has no batches")
	}
	return nil
}

func (gc *grafanaClient) lokiHasTraceLogs(ctx context.Context, traceID string) error {
	end := time.Now()
	query := url.QueryEscape(fmt.Sprintf("{service_name=%q} |= \"trace_id=%s\"", gc.opts.serviceName, traceID))
	path := fmt.Sprintf("/loki/api/v1/query_range?query=%s&start=%d&end=%d&limit=1&direction=backward",
		query, end.Add(-30*time.Minute).UnixNano(), end.UnixNano())

	var payload struct {
		Data struct {
			Result []json.RawMessage `json:"result"`
		} `json:"data"`
	}
	if err := gc.proxyGET(ctx, lokiDatasource, path, &payload); err != nil {
		return err
	}
	if len(payload.Data.Result) == 0 {
		return fmt.Errorf("no correlated loki logs found for trace_id %s", traceID)
	}
	return nil
}
