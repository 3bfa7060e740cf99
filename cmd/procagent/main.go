package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/procagent/procagent/pkg/config"
	"github.com/procagent/procagent/pkg/log"
	"github.com/procagent/procagent/pkg/orchestrator"
	"github.com/procagent/procagent/pkg/session"
)

// Constants for the command-line interface
const (
	cmdHelp    = "!help"
	cmdQuit    = "!quit"
	cmdSession = "!session"
	cmdUser    = "!user"
	cmdClear   = "!clear"
	cmdConfig  = "!config"
)

// Command-line help text
const helpText = `
ProcAgent - Command Reference:
-----------------------------------------
!help           - Show this help message
!session <id>   - Switch to a different session
!user <id>      - Set the current user ID
!clear          - Clear the current session's conversation log
!config         - Show current configuration
!quit           - Exit the application

Notes:
- Regular text input is sent through the pipeline as a turn
- Tab completion is available for commands
- Use up/down arrows for command history`

// historyFile is the file where command history is stored
const historyFile = ".procagent_history"

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	stdinMode := flag.Bool("s", false, "Read from stdin and exit when complete")
	flag.Parse()

	// Environment files carry API keys and connection strings; absence is fine
	_ = godotenv.Load()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg = config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Setup(log.Config{
		Level:  log.Level(cfg.Logging.Level),
		Format: log.Format(cfg.Logging.Format),
	})

	log.Info("Starting ProcAgent")

	orch, err := orchestrator.NewFromConfig(cfg)
	if err != nil {
		log.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}
	defer orch.Close()

	runCLI(orch, cfg, *stdinMode)
}

// runCLI starts the command-line interface for user interaction
func runCLI(orch *orchestrator.Orchestrator, cfg *config.Config, stdinMode bool) {
	currentSession := session.ID("default-session")
	currentUser := "default-user"

	if stdinMode {
		scanner := bufio.NewScanner(os.Stdin)

		printBanner(cfg, currentSession, currentUser)

		for scanner.Scan() {
			input := strings.TrimSpace(scanner.Text())
			if input == "" || strings.HasPrefix(input, "#") {
				continue
			}

			if input == cmdQuit {
				fmt.Println("Goodbye!")
				return
			}

			fmt.Printf("procagent::%s@%s> %s\n", currentUser, currentSession, input)
			processCommand(input, orch, cfg, &currentSession, &currentUser)
		}

		if err := scanner.Err(); err != nil {
			fmt.Printf("Error reading stdin: %v\n", err)
		}
		fmt.Println("Goodbye!")
		return
	}

	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetMultiLineMode(false)

	line.SetCompleter(func(line string) (c []string) {
		commands := []string{cmdHelp, cmdQuit, cmdSession, cmdUser, cmdClear, cmdConfig}
		for _, cmd := range commands {
			if strings.HasPrefix(cmd, line) {
				c = append(c, cmd)
			}
		}
		return
	})

	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyFile); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	printBanner(cfg, currentSession, currentUser)
	fmt.Println("Type !help for available commands.")

	for {
		prompt := fmt.Sprintf("procagent::%s@%s> ", currentUser, currentSession)
		input, err := line.Prompt(prompt)
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nGoodbye!")
				break
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == cmdQuit {
			fmt.Println("Goodbye!")
			break
		}

		processCommand(input, orch, cfg, &currentSession, &currentUser)
	}
}

func printBanner(cfg *config.Config, currentSession session.ID, currentUser string) {
	fmt.Println("\n=== ProcAgent ===")
	fmt.Println("Short-term store:", cfg.ShortTerm.Type)
	fmt.Println("Long-term store:", cfg.LongTerm.Type)
	fmt.Println("Source store:", cfg.Source.Type)
	fmt.Println("Completion provider:", cfg.Completion.Provider)
	fmt.Printf("Current Session: %s | Current User: %s\n", currentSession, currentUser)
}

// processCommand handles a single line of input
func processCommand(input string, orch *orchestrator.Orchestrator, cfg *config.Config, currentSession *session.ID, currentUser *string) {
	if !strings.HasPrefix(input, "!") {
		sendTurn(input, orch, *currentSession, *currentUser)
		return
	}

	parts := strings.SplitN(input, " ", 2)
	switch parts[0] {
	case cmdHelp:
		fmt.Println(helpText)

	case cmdSession:
		if len(parts) == 1 {
			fmt.Printf("Current session: %s\n", *currentSession)
		} else {
			*currentSession = session.ID(strings.TrimSpace(parts[1]))
			fmt.Printf("Session set to: %s\n", *currentSession)
		}

	case cmdUser:
		if len(parts) == 1 {
			fmt.Printf("Current user: %s\n", *currentUser)
		} else {
			*currentUser = strings.TrimSpace(parts[1])
			fmt.Printf("User set to: %s\n", *currentUser)
		}

	case cmdClear:
		ctx := session.ContextWithSession(context.Background(), session.NewContext(*currentSession, *currentUser))
		if err := orch.ClearSession(ctx); err != nil {
			fmt.Printf("Error clearing session: %v\n", err)
		} else {
			fmt.Printf("Session %s cleared.\n", *currentSession)
		}

	case cmdConfig:
		fmt.Println("\nCurrent Configuration:")
		fmt.Println("======================")
		fmt.Printf("Short-term store: %s\n", cfg.ShortTerm.Type)
		fmt.Printf("Long-term store: %s\n", cfg.LongTerm.Type)
		fmt.Printf("Source store: %s\n", cfg.Source.Type)
		fmt.Printf("Completion provider: %s\n", cfg.Completion.Provider)
		if cfg.Completion.Provider == "openai" {
			fmt.Printf("OpenAI model: %s\n", cfg.Completion.OpenAI.Model)
			fmt.Printf("OpenAI embedding model: %s\n", cfg.Completion.OpenAI.EmbeddingModel)
		}
		fmt.Printf("Scripting enabled: %v\n", cfg.Scripting.Enabled)
		fmt.Printf("Log level: %s\n", cfg.Logging.Level)
		fmt.Printf("Session: %s\n", *currentSession)
		fmt.Printf("User: %s\n", *currentUser)

	default:
		fmt.Printf("Unknown command: %s\nType !help for available commands.\n", parts[0])
	}
}

func sendTurn(text string, orch *orchestrator.Orchestrator, sessionID session.ID, userID string) {
	ctx := session.ContextWithSession(context.Background(), session.NewContext(sessionID, userID))

	result, err := orch.SendTurn(ctx, text)
	if err != nil {
		fmt.Printf("Error processing turn: %v\n", err)
		return
	}

	fmt.Println(result.Text)

	if route, ok := result.Metadata[orchestrator.MetaRoute]; ok {
		if total, ok := result.Metadata[orchestrator.MetaTotalRows]; ok {
			fmt.Printf("[%v, %v matching rows]\n", route, total)
		}
	}
}
