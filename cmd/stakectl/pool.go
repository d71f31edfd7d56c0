package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type client struct {
	endpoint string
	token    string
	http     *http.Client
}

func envOr(name, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		return value
	}
	return fallback
}

func runPoolCommand(command string, args []string) error {
	fs := flag.NewFlagSet(command, flag.ExitOnError)
	endpoint := fs.String("endpoint", envOr(endpointEnv, defaultEndpoint), "stakepoold base URL")
	token := fs.String("token", os.Getenv(tokenEnv), "Caller token (see stakectl token)")
	_ = fs.Parse(args)
	rest := fs.Args()

	c := &client{
		endpoint: strings.TrimRight(*endpoint, "/"),
		token:    strings.TrimSpace(*token),
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	need := func(n int, shape string) error {
		if len(rest) != n {
			return fmt.Errorf("usage: stakectl %s %s", command, shape)
		}
		return nil
	}
	needAtLeast := func(n int, shape string) error {
		if len(rest) < n {
			return fmt.Errorf("usage: stakectl %s %s", command, shape)
		}
		return nil
	}

	switch command {
	case "deposite", "deposit":
		if err := need(1, "AMOUNT"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/pool/deposite", map[string]string{"amount": rest[0]})
	case "withdraw":
		if err := need(1, "AMOUNT"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/pool/withdraw", map[string]string{"amount": rest[0]})
	case "reward":
		if err := need(1, "AMOUNT"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/pool/rewards", map[string]string{"amount": rest[0]})
	case "register-mods":
		if err := needAtLeast(1, "ADDR..."); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/pool/moderators", map[string][]string{"accounts": rest})
	case "remove-mods":
		if err := needAtLeast(1, "ADDR..."); err != nil {
			return err
		}
		return c.call(http.MethodDelete, "/v1/pool/moderators", map[string][]string{"accounts": rest})
	case "transfer-ownership":
		if err := need(1, "ADDR"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/pool/owner", map[string]string{"owner": rest[0]})
	case "approve":
		if err := need(3, "SYMBOL SPENDER AMOUNT"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/tokens/"+url.PathEscape(rest[0])+"/approve",
			map[string]string{"spender": rest[1], "amount": rest[2]})
	case "transfer", "mint":
		if err := need(3, "SYMBOL TO AMOUNT"); err != nil {
			return err
		}
		return c.call(http.MethodPost, "/v1/tokens/"+url.PathEscape(rest[0])+"/"+command,
			map[string]string{"to": rest[1], "amount": rest[2]})
	case "pool":
		return c.call(http.MethodGet, "/v1/pool", nil)
	case "window":
		return c.call(http.MethodGet, "/v1/pool/window", nil)
	case "tokens":
		return c.call(http.MethodGet, "/v1/pool/tokens", nil)
	case "pending":
		if err := need(1, "ADDR"); err != nil {
			return err
		}
		return c.call(http.MethodGet, "/v1/pool/pending/"+url.PathEscape(rest[0]), nil)
	case "account":
		if err := need(1, "ADDR"); err != nil {
			return err
		}
		return c.call(http.MethodGet, "/v1/pool/accounts/"+url.PathEscape(rest[0]), nil)
	case "balance":
		if err := need(2, "SYMBOL ADDR"); err != nil {
			return err
		}
		return c.call(http.MethodGet, "/v1/tokens/"+url.PathEscape(rest[0])+"/balances/"+url.PathEscape(rest[1]), nil)
	case "receipts":
		return c.call(http.MethodGet, "/v1/receipts", nil)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// call sends the request and pretty-prints the JSON response. Non-2xx
// responses are returned as errors carrying the server's message.
func (c *client) call(method, path string, body interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.endpoint+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, payload, "", "  ") != nil {
		pretty.Reset()
		pretty.Write(bytes.TrimSpace(payload))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var failure struct {
			Error struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(payload, &failure) == nil && failure.Error.Message != "" {
			return fmt.Errorf("%s (%s, HTTP %d)", failure.Error.Message, failure.Error.Kind, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, pretty.String())
	}
	fmt.Println(pretty.String())
	return nil
}
