package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"VMS-backend/internal/capture"
	"VMS-backend/internal/report"
)

var (
	apiBaseURL     string
	accessToken    string
	expectAction   string
	framesPath     string
	frameInterval  time.Duration
	requestTimeout time.Duration
)

var ScanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan an attendance QR from a frame source and submit it once",
	Long: `Scan an attendance QR from a frame source and submit it once.
Each line of --frames is one decode attempt; a blank line means nothing was decoded in that frame.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if framesPath == "" {
			return errors.New("--frames is required")
		}
		s := capture.NewSession(
			capture.FileCamera{Path: framesPath, Interval: frameInterval},
			newHTTPVerifier(),
			capture.WithExpect(expectAction),
		)
		defer s.Close()

		ctx, cancel := context.WithTimeout(cmdContext(cmd), requestTimeout)
		defer cancel()
		res, err := s.Scan(ctx)
		if err != nil {
			return err
		}
		res, err = retryOnce(ctx, s, res)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

var CodeCmd = &cobra.Command{
	Use:   "code <6 digits>",
	Short: "Submit a 6-digit attendance code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := capture.NewCodeEntry(newHTTPVerifier(), capture.WithExpect(expectAction))
		defer e.Close()

		ctx, cancel := context.WithTimeout(cmdContext(cmd), requestTimeout)
		defer cancel()
		res, err := e.Submit(ctx, args[0])
		if err != nil {
			return err
		}
		res, err = retryOnce(ctx, e, res)
		if err != nil {
			return err
		}
		return printResult(cmd.OutOrStdout(), res)
	},
}

type retrier interface {
	Retry(ctx context.Context) (*capture.Result, error)
}

// retryOnce: NETWORK_FAILURE なら同じペイロードで1回だけ再送
func retryOnce(ctx context.Context, r retrier, res *capture.Result) (*capture.Result, error) {
	if res.Failure == nil || res.Failure.Class.Disposition() != capture.DispositionRetry {
		return res, nil
	}
	again, err := r.Retry(ctx)
	if err != nil {
		return res, nil
	}
	return again, nil
}

func newHTTPVerifier() *capture.HTTPVerifier {
	tok := accessToken
	if tok == "" {
		tok = os.Getenv("ATTEND_ACCESS_TOKEN")
	}
	return &capture.HTTPVerifier{BaseURL: apiBaseURL, AccessToken: tok}
}

func printResult(w io.Writer, res *capture.Result) error {
	v := report.New(report.WithLocation(time.Local)).FromResult(res)
	fmt.Fprint(w, v.Text())
	if v.Kind == report.KindFailure {
		return fmt.Errorf("attendance not recorded: %s", v.ErrorClass)
	}
	return nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	for _, c := range []*cobra.Command{ScanCmd, CodeCmd} {
		c.Flags().StringVar(&apiBaseURL, "api", "https://localhost:8443/api/v1", "attendance API base URL")
		c.Flags().StringVar(&accessToken, "access-token", "", "bearer token (default $ATTEND_ACCESS_TOKEN)")
		c.Flags().StringVar(&expectAction, "expect", "", "check_in | check_out (empty accepts either)")
		c.Flags().DurationVar(&requestTimeout, "timeout", 30*time.Second, "overall timeout")
	}
	ScanCmd.Flags().StringVar(&framesPath, "frames", "", "file with one decoded frame per line")
	ScanCmd.Flags().DurationVar(&frameInterval, "interval", 100*time.Millisecond, "delay between frames")
}
