// Command login performs the interactive Kite Connect login flow and writes
// the dated access-token file the relay reads at startup. Access tokens
// expire daily; run this once per trading day for AUTH_METHOD=API.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/deepuanant/tickrelay/internal/config"
	"github.com/deepuanant/tickrelay/internal/kite"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	godotenv.Load()

	creds, err := config.LoadCredentials()
	if err != nil {
		logger.Error("failed to load credentials", "error", err)
		os.Exit(1)
	}
	if creds.APIKey == "" || creds.APISecret == "" {
		logger.Error("API_KEY and API_SECRET must be set")
		os.Exit(1)
	}

	if token, err := kite.LoadAccessToken(creds.AccessTokenDir); err == nil && token != "" {
		fmt.Println("Access token for today already exists; nothing to do.")
		return
	}

	fmt.Println("Login url:", kite.LoginURL(creds.APIKey))
	fmt.Print("Login and enter your request token here: ")

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		logger.Error("failed to read request token", "error", err)
		os.Exit(1)
	}
	requestToken := strings.TrimSpace(line)
	if requestToken == "" {
		logger.Error("empty request token")
		os.Exit(1)
	}

	token, err := kite.GenerateSession(creds.APIKey, creds.APISecret, requestToken)
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}

	if err := kite.SaveAccessToken(creds.AccessTokenDir, token); err != nil {
		logger.Error("failed to save access token", "error", err)
		os.Exit(1)
	}

	fmt.Println("Login successful; access token saved to", kite.AccessTokenPath(creds.AccessTokenDir))
}
