// Command net80211ctl is a thin HTTP client for the net80211d control
// surface: scan, join, leave, stations.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	addr := envOr("NET80211_ADDR", "http://localhost:8088")
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = post(addr+"/api/scan", map[string]interface{}{"background": false, "broadcast": true})
	case "join":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		passphrase := ""
		if len(os.Args) > 3 {
			passphrase = os.Args[3]
		}
		err = post(addr+"/api/join", map[string]interface{}{"ssid": os.Args[2], "passphrase": passphrase})
	case "leave":
		err = post(addr+"/api/leave", nil)
	case "stations":
		err = get(addr + "/api/stations")
	case "history":
		err = get(addr + "/api/history")
	case "report":
		err = download(addr+"/api/report", "station-report.pdf")
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: net80211ctl <scan|join <ssid> [passphrase]|leave|stations|history|report>")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func post(url string, body map[string]interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Println(string(out))
	return nil
}

func get(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Println(string(out))
	return nil
}

func download(url, filename string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		out, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s", resp.Status, string(out))
	}
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return err
	}
	fmt.Println("wrote", filename)
	return nil
}
