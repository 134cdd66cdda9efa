// Command batchctl is a thin operator CLI against a running lumalens
// server's batch endpoints: start a batch, poll its status, or cancel it,
// without reaching for curl and hand-typed JSON bodies.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start":
		runStart(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "cancel":
		runCancel(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: batchctl <start|status|cancel> [flags]")
}

func runStart(args []string) {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	baseURL := fs.String("base-url", "http://localhost:8080", "lumalens server base URL")
	album := fs.String("album", "", "album key to process (required)")
	handling := fs.String("duplicate-handling", "skip", "skip|update|replace")
	force := fs.Bool("force", false, "reprocess images already in the store")
	maxImages := fs.Int("max-images", 0, "cap on jobs created, 0 = unlimited")
	fs.Parse(args)

	if *album == "" {
		fmt.Fprintln(os.Stderr, "start: -album is required")
		os.Exit(1)
	}

	body, _ := json.Marshal(map[string]any{
		"albumKey":          *album,
		"duplicateHandling": *handling,
		"forceReprocessing": *force,
		"maxImages":         *maxImages,
	})

	resp := post(*baseURL+"/api/batch/start", body)
	printResponse(resp)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	baseURL := fs.String("base-url", "http://localhost:8080", "lumalens server base URL")
	batchID := fs.String("id", "", "batch ID, empty lists all batches")
	fs.Parse(args)

	path := "/api/batch/status"
	if *batchID != "" {
		path += "/" + *batchID
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(*baseURL + path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "status:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func runCancel(args []string) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	baseURL := fs.String("base-url", "http://localhost:8080", "lumalens server base URL")
	batchID := fs.String("id", "", "batch ID, empty cancels every tracked batch")
	fs.Parse(args)

	body, _ := json.Marshal(map[string]any{"batchId": *batchID})
	resp := post(*baseURL+"/api/batch/cancel", body)
	printResponse(resp)
}

func post(url string, body []byte) *http.Response {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintln(os.Stderr, "request failed:", err)
		os.Exit(1)
	}
	return resp
}

func printResponse(resp *http.Response) {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read response:", err)
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(raw))
	}

	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}
