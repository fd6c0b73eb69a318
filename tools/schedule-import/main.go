package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/config"
)

func main() {
	var (
		baseURL = flag.String("base-url", config.String("BASE_URL", "http://localhost:8083"), "booking-service base url")
		file    = flag.String("file", "", "schedule YAML file")
		dryRun  = flag.Bool("dry-run", false, "print requests instead of sending them")
	)
	flag.Parse()

	if strings.TrimSpace(*file) == "" {
		fatal("-file is required")
	}
	f, err := Load(*file)
	if err != nil {
		fatal(err.Error())
	}

	client := &http.Client{Timeout: 10 * time.Second}
	base := strings.TrimRight(*baseURL, "/")
	send := func(method, path string, body any) {
		payload, err := json.Marshal(body)
		if err != nil {
			fatal(err.Error())
		}
		if *dryRun {
			fmt.Printf("%s %s %s\n", method, path, payload)
			return
		}
		req, err := http.NewRequest(method, base+path, bytes.NewReader(payload))
		if err != nil {
			fatal(err.Error())
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := client.Do(req)
		if err != nil {
			fatal(err.Error())
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			fatal(fmt.Sprintf("%s %s: status=%d %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg))))
		}
		fmt.Printf("%s %s status=%d\n", method, path, resp.StatusCode)
	}

	send(http.MethodPut, "/api/v1/shops/schedule", f.scheduleBody())
	for _, exc := range f.exceptionBodies() {
		send(http.MethodPut, "/api/v1/shops/exceptions", exc)
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
