package cmd

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencall/opencall/internal/api"
	ocerrors "github.com/opencall/opencall/internal/errors"
	"github.com/opencall/opencall/internal/ux"
)

var requestMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

func newRequestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "request METHOD ENDPOINT",
		Short: "Send a raw request through the authenticated pipeline",
		Long: `Send a request to any API endpoint. The stored token is attached,
refreshed when it is about to expire, and the request is retried once
after a 401. The {"data": ...} envelope is removed from the response.

Examples:
  opencall request GET /bookings/me
  opencall request POST /mentor/services -d '{"title":"Code review","duration_minutes":30}'
  opencall request POST /auth/register -d @register.json --public`,
		Args: cobra.ExactArgs(2),
		RunE: runRequest,
	}
	cmd.Flags().StringP("data", "d", "", "JSON body, or @file to read it from a file")
	cmd.Flags().StringArrayP("header", "H", nil, "extra header as 'Name: value' (repeatable)")
	cmd.Flags().Bool("public", false, "send without a token and never refresh")
	cmd.Flags().String("token", "", "use this bearer token instead of the stored one")
	return cmd
}

func runRequest(cmd *cobra.Command, args []string) error {
	a, err := appFrom(cmd)
	if err != nil {
		return err
	}

	method := strings.ToUpper(args[0])
	if !requestMethods[method] {
		return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "unsupported method "+args[0]).
			WithSuggestion("Use GET, POST, PUT, PATCH or DELETE")
	}

	opts := api.Options{Method: method}
	opts.SkipAuth, _ = cmd.Flags().GetBool("public")
	opts.Token, _ = cmd.Flags().GetString("token")

	data, _ := cmd.Flags().GetString("data")
	if data != "" {
		body, err := requestBody(data)
		if err != nil {
			return err
		}
		opts.Body = body
	}

	headers, _ := cmd.Flags().GetStringArray("header")
	if len(headers) > 0 {
		opts.Headers = make(map[string]string, len(headers))
		for _, h := range headers {
			name, value, ok := strings.Cut(h, ":")
			if !ok || strings.TrimSpace(name) == "" {
				return ocerrors.New(ocerrors.ErrCodeInvalidArguments, "invalid header "+h).
					WithSuggestion("Headers look like 'X-Name: value'")
			}
			opts.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}

	var out any
	if err := a.client.Do(cmd.Context(), args[1], opts, &out); err != nil {
		return err
	}
	if out == nil {
		return a.print(ux.Result{Data: nil, View: "(no content)"})
	}
	return a.print(ux.Result{Data: out, View: indentJSON(out)})
}

// requestBody resolves the --data value into raw JSON bytes.
func requestBody(data string) ([]byte, error) {
	raw := []byte(data)
	if path, ok := strings.CutPrefix(data, "@"); ok {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ocerrors.NewFileNotFoundError(path)
			}
			return nil, ocerrors.Wrap(ocerrors.ErrCodeFileReadFailed, "failed to read request body", err)
		}
		raw = b
	}
	if !json.Valid(raw) {
		return nil, ocerrors.New(ocerrors.ErrCodeInvalidArguments, "request body is not valid JSON")
	}
	return raw, nil
}

func indentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}
