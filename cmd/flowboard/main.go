// Command flowboard is a terminal client for the realtime kanban: it signs
// in (or rehydrates a stored credential), joins a project room and relays
// chat from stdin while the board cache tracks the room's events.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Nikita-812/WebProject/internal/gateway"
	"github.com/Nikita-812/WebProject/internal/models"
	"github.com/Nikita-812/WebProject/internal/realtime"
	"github.com/Nikita-812/WebProject/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	projectFlag := flag.String("project", "", "project id to join (defaults to the first project)")
	signOut := flag.Bool("sign-out", false, "erase the stored credential and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if level, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	if err := run(*configPath, *projectFlag, *signOut); err != nil {
		log.Fatal().Err(err).Msg("flowboard exited")
	}
}

func run(configPath, projectFlag string, signOut bool) error {
	config, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	credPath, err := session.DefaultCredentialPath()
	if err != nil {
		return err
	}
	creds := session.NewCredentialStore(credPath)

	if signOut {
		if err := creds.Erase(); err != nil {
			return err
		}
		fmt.Println("signed out")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := gateway.NewClient(config.APIURL)
	auth, err := signIn(ctx, api, creds, config)
	if err != nil {
		return err
	}
	api.SetToken(auth.AccessToken)

	sock, err := realtime.Dial(ctx, socketConfig(config, auth))
	if err != nil {
		return err
	}
	defer sock.Close()

	bridge := realtime.NewBridge(sock, auth.User)
	manager := session.NewManager(api, bridge, clockwork.NewRealClock(), auth.User)

	projectID, err := pickProject(ctx, api, projectFlag)
	if err != nil {
		return err
	}

	room, err := manager.Switch(ctx, projectID)
	if err != nil {
		return err
	}
	defer manager.Leave(context.Background())

	fmt.Printf("joined project %s: %d columns, %d cards, %d messages\n",
		projectID, len(room.Board.Columns()), len(room.Board.Cards()), len(room.Chat.Messages()))
	fmt.Println("type a message and press enter to send; ctrl-c to quit")

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if line == "" {
				continue
			}
			msg, err := manager.SendChat(ctx, line)
			if err != nil {
				log.Error().Err(err).Msg("message was not sent")
				continue
			}
			fmt.Printf("sent %s at %s\n", msg.ID, msg.CreatedAt.Format("15:04:05"))
		}
	}
}

// signIn rehydrates the stored credential, falling back to a fresh login with
// the configured email and password.
func signIn(ctx context.Context, api *gateway.Client, creds *session.CredentialStore, config *Config) (models.AuthResponse, error) {
	if stored, err := creds.Load(); err == nil && stored != nil {
		log.Info().Str("email", stored.User.Email).Msg("using stored credential")
		return *stored, nil
	}

	if config.Auth.Email == "" || config.Auth.Password == "" {
		return models.AuthResponse{}, fmt.Errorf("no stored credential and no email/password configured")
	}

	auth, err := api.Login(ctx, gateway.LoginRequest{
		Email:    config.Auth.Email,
		Password: config.Auth.Password,
	})
	if err != nil {
		return models.AuthResponse{}, err
	}
	if err := creds.Save(auth); err != nil {
		log.Warn().Err(err).Msg("could not persist credential")
	}
	return auth, nil
}

func socketConfig(config *Config, auth models.AuthResponse) realtime.SocketConfig {
	wsURL := config.WSURL
	if u, err := url.Parse(wsURL); err == nil {
		q := u.Query()
		q.Set("user_id", auth.User.ID.String())
		q.Set("display_name", auth.User.DisplayName)
		u.RawQuery = q.Encode()
		wsURL = u.String()
	}
	return realtime.DefaultSocketConfig(wsURL, auth.AccessToken)
}

func pickProject(ctx context.Context, api *gateway.Client, projectFlag string) (uuid.UUID, error) {
	if projectFlag != "" {
		return uuid.Parse(projectFlag)
	}
	projects, err := api.Projects(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	if len(projects) == 0 {
		return uuid.Nil, fmt.Errorf("no projects available")
	}
	return projects[0].ID, nil
}
