package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/desertthunder/cardtpl/internal/services"
	"github.com/desertthunder/cardtpl/internal/shared"
	"github.com/urfave/cli/v3"
)

// APIRequest returns an action that sends method to the path argument and prints the response.
//
// The body comes from --data, or --data @file. Only POST and PUT send one.
func (r *Runner) APIRequest(method string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.StringArg("path")
		if path == "" {
			return fmt.Errorf("%w: path", shared.ErrMissingArgument)
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}

		var body []byte
		if method == http.MethodPost || method == http.MethodPut {
			data, err := requestBody(cmd.String("data"))
			if err != nil {
				return err
			}
			body = data
		}

		r.logger.Info("api request", "method", method, "path", path, "bytes", len(body))

		resp, err := r.templateService().Raw(ctx, method, path, body)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}
		return r.writeRaw(resp, cmd.Bool("pretty"))
	}
}

// requestBody reads an inline or @file body and checks it is JSON.
func requestBody(data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("%w: --data", shared.ErrMissingArgument)
	}

	raw := []byte(data)
	if path, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		raw = b
	}

	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: request body is not valid JSON", shared.ErrInvalidInput)
	}
	return raw, nil
}

func (r *Runner) writeRaw(resp *services.RawResponse, pretty bool) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d, body: %s", shared.ErrAPIRequest, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	switch {
	case resp.StatusCode == http.StatusNoContent || len(resp.Body) == 0:
		return r.writePlain("%d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))
	case resp.IsJSON:
		return r.writeJSON(resp.JSONData, pretty)
	default:
		return r.writePlain("%s\n", resp.Body)
	}
}
