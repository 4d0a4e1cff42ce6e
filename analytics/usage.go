package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/posthog/posthog-go"
)

const (
	// Analyze command events.
	AnalyzeStarted   = "exploitprover:analyze_started"
	AnalyzeCompleted = "exploitprover:analyze_completed"
	AnalyzeFailed    = "exploitprover:analyze_failed"

	// Workspace (cross-file) command events.
	WorkspaceStarted   = "exploitprover:workspace_started"
	WorkspaceCompleted = "exploitprover:workspace_completed"
	WorkspaceFailed    = "exploitprover:workspace_failed"

	// Quick sink scan events.
	SinkScanCompleted = "exploitprover:sink_scan_completed"
)

var (
	PublicKey     string
	enableMetrics bool
	appVersion    string
)

// Init enables or disables metric collection for this process.
func Init(disableMetrics bool) {
	enableMetrics = !disableMetrics
}

// SetVersion records the application version attached to every event.
func SetVersion(version string) {
	appVersion = version
}

func createEnvFile() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Println("Error getting user home directory:", err)
		return
	}
	envFile := filepath.Join(homeDir, ".exploitprover", ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(envFile), os.ModePerm); err != nil {
			fmt.Println("Error creating directory:", err)
			return
		}
		env := map[string]string{
			"uuid": uuid.New().String(),
		}
		if err := godotenv.Write(env, envFile); err != nil {
			fmt.Println("Error writing to .env file:", err)
		}
	}
}

// LoadEnvFile ensures the install id exists and loads it into the environment.
func LoadEnvFile() {
	createEnvFile()
	envFile := filepath.Join(os.Getenv("HOME"), ".exploitprover", ".env")
	if err := godotenv.Load(envFile); err != nil {
		return
	}
}

// ReportEvent sends a bare event.
func ReportEvent(event string) {
	ReportEventWithProperties(event, nil)
}

// ReportEventWithProperties sends an event with additional properties.
// Properties must not contain PII: no file paths, no code, no user info.
func ReportEventWithProperties(event string, properties map[string]interface{}) {
	if !enableMetrics || PublicKey == "" {
		return
	}

	client, err := posthog.NewWithConfig(
		PublicKey,
		posthog.Config{
			Endpoint: "https://us.i.posthog.com",
		},
	)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer client.Close()

	captureProperties := posthog.NewProperties()
	captureProperties.Set("os", runtime.GOOS)
	captureProperties.Set("arch", runtime.GOARCH)
	captureProperties.Set("go_version", runtime.Version())
	if appVersion != "" {
		captureProperties.Set("exploitprover_version", appVersion)
	}
	for k, v := range properties {
		captureProperties.Set(k, v)
	}

	err = client.Enqueue(posthog.Capture{
		DistinctId: os.Getenv("uuid"),
		Event:      event,
		Properties: captureProperties,
	})
	if err != nil {
		fmt.Println(err)
	}
}
