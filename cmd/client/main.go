// cmd/client is the external collaborator surface spec section 6
// describes: submit a job, await its results, or poll its status against
// any live chordmr node's HTTP API. Grounded in the teacher's
// cmd/cache-client/main.go (liner-driven interactive shell over a plain
// net/http client), retargeted from cache lookups to job submission.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"
)

type kv struct {
	Key   []byte `json:"Key"`
	Value []byte `json:"Value"`
}

func main() {
	addr := flag.String("addr", "http://localhost:4001", "address of a chordmr node's HTTP API")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	handle := flag.String("handle", "wordcount", "kernel handle to run")
	submitFile := flag.String("submit", "", "path to a file to submit as a single-item job, then exit non-interactively")
	awaitFlag := flag.Bool("await", true, "with -submit, also wait for and print the results")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	if *submitFile != "" {
		os.Exit(runOnce(client, *addr, *handle, *submitFile, *awaitFlag))
	}

	runREPL(client, *addr)
}

// runOnce implements the non-interactive "submit + awaitResults" exit
// code contract: 0 on success, 1 on job failure, 2 on inability to reach
// any ring member.
func runOnce(client *http.Client, addr, handle, path string, await bool) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", path, err)
		return 2
	}

	jobID, err := submit(client, addr, handle, []kv{{Key: []byte(path), Value: data}})
	if err != nil {
		fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
		return 2
	}
	fmt.Printf("submitted job %s\n", jobID)

	if !await {
		return 0
	}
	results, err := awaitResults(client, addr, jobID, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "job failed: %v\n", err)
		return 1
	}
	printResults(results)
	return 0
}

func runREPL(client *http.Client, addr string) {
	fmt.Printf("chordmr client. Connected to %s\n", addr)
	fmt.Println("Available commands: submit/await/status/use/help/exit")
	fmt.Println("")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	currentAddr := addr

	for {
		input, err := line.Prompt(fmt.Sprintf("chordmr[%s]> ", currentAddr))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Println("Aborted")
				continue
			}
			break
		}
		line.AppendHistory(input)

		args := strings.Fields(strings.TrimSpace(input))
		if len(args) == 0 {
			continue
		}
		cmd := args[0]

		switch cmd {
		case "submit":
			if len(args) < 3 {
				fmt.Println("Usage: submit <handle> <key=value> [key=value...]")
				fmt.Println("Example: submit wordcount line0=\"hello world\"")
				continue
			}
			var items []kv
			for _, pair := range args[2:] {
				k, v, ok := strings.Cut(pair, "=")
				if !ok {
					fmt.Printf("skipping malformed pair %q (expected key=value)\n", pair)
					continue
				}
				items = append(items, kv{Key: []byte(k), Value: []byte(v)})
			}
			jobID, err := submit(client, currentAddr, args[1], items)
			if err != nil {
				fmt.Printf("submit failed: %v\n", err)
				continue
			}
			fmt.Printf("job_id: %s\n", jobID)

		case "await":
			if len(args) < 2 {
				fmt.Println("Usage: await <job_id> [timeout_seconds]")
				continue
			}
			timeoutSecs := 60
			if len(args) >= 3 {
				fmt.Sscanf(args[2], "%d", &timeoutSecs)
			}
			results, err := awaitResults(client, currentAddr, args[1], timeoutSecs)
			if err != nil {
				fmt.Printf("await failed: %v\n", err)
				continue
			}
			printResults(results)

		case "status":
			if len(args) < 2 {
				fmt.Println("Usage: status <job_id>")
				continue
			}
			resp, err := client.Get(fmt.Sprintf("%s/jobs/%s/status", currentAddr, args[1]))
			if err != nil {
				fmt.Printf("status request failed: %v\n", err)
				continue
			}
			printJSONBody(resp)

		case "health":
			resp, err := client.Get(fmt.Sprintf("%s/health", currentAddr))
			if err != nil {
				fmt.Printf("health request failed: %v\n", err)
				continue
			}
			printJSONBody(resp)

		case "debug":
			resp, err := client.Get(fmt.Sprintf("%s/debug", currentAddr))
			if err != nil {
				fmt.Printf("debug request failed: %v\n", err)
				continue
			}
			printJSONBody(resp)

		case "use", "connect":
			if len(args) < 2 {
				fmt.Println("Usage: use <addr>")
				continue
			}
			newAddr := args[1]
			if !strings.HasPrefix(newAddr, "http://") && !strings.HasPrefix(newAddr, "https://") {
				newAddr = "http://" + newAddr
			}
			resp, err := client.Get(fmt.Sprintf("%s/health", newAddr))
			if err != nil {
				fmt.Printf("failed to connect to %s: %v\n", newAddr, err)
				continue
			}
			resp.Body.Close()
			currentAddr = newAddr
			fmt.Printf("switched to %s\n", currentAddr)

		case "help", "?":
			fmt.Println("Available commands:")
			fmt.Println("  submit <handle> <key=value>...  - submit a job with literal input pairs")
			fmt.Println("  await <job_id> [timeout_secs]   - block until a job completes and print results")
			fmt.Println("  status <job_id>                 - show a job's phase/task counters")
			fmt.Println("  health                           - check node health")
			fmt.Println("  debug                            - show routing table info")
			fmt.Println("  use <addr>                       - switch to a different node")
			fmt.Println("  help                             - show this help")
			fmt.Println("  exit                             - exit client")

		case "exit", "quit", "q":
			fmt.Println("Bye!")
			return

		default:
			fmt.Printf("Unknown command: %s\n", cmd)
			fmt.Println("Type 'help' for available commands")
		}
	}
}

func submit(client *http.Client, addr, handle string, items []kv) (string, error) {
	body, err := json.Marshal(map[string]any{"handle": handle, "items": items})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(addr+"/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func awaitResults(client *http.Client, addr, jobID string, timeoutSecs int) (map[string]string, error) {
	url := fmt.Sprintf("%s/jobs/%s/results", addr, jobID)
	if timeoutSecs > 0 {
		url = fmt.Sprintf("%s?timeout=%d", url, timeoutSecs)
	}
	resp, err := client.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(b)))
	}
	var out struct {
		Results map[string]string `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	decoded := make(map[string]string, len(out.Results))
	for k, v := range out.Results {
		raw, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			decoded[k] = v
			continue
		}
		decoded[k] = string(raw)
	}
	return decoded, nil
}

func printResults(results map[string]string) {
	fmt.Printf("%d result keys:\n", len(results))
	for k, v := range results {
		fmt.Printf("  %s: %s\n", k, v)
	}
}

func printJSONBody(resp *http.Response) {
	defer resp.Body.Close()
	var v any
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		fmt.Printf("failed to parse response: %v\n", err)
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
}
