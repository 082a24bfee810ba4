package command

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/viant/afs/url"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	rssh "github.com/viant/gosh/runner/ssh"
	"github.com/viant/scy/cred/secret"
	"golang.org/x/crypto/ssh"

	"github.com/stepflow/stepflow/internal/clock"
	"github.com/stepflow/stepflow/model"
)

// Shell runs step commands through gosh shell sessions, one session per
// workflow session id so that working directory and environment persist
// across steps. Commands run on localhost unless a remote host URL is
// configured.
type Shell struct {
	hostURL     string
	credentials string
	env         map[string]string
	sessions    map[string]*gosh.Service
	mux         sync.Mutex
}

// ShellOption customises the shell runner.
type ShellOption func(*Shell)

// WithHostURL points the runner at a remote host (e.g. "ssh://10.0.0.2:22").
func WithHostURL(hostURL string) ShellOption {
	return func(s *Shell) {
		s.hostURL = hostURL
	}
}

// WithCredentials names the scy secret resource holding SSH credentials.
func WithCredentials(credentials string) ShellOption {
	return func(s *Shell) {
		s.credentials = credentials
	}
}

// WithEnv sets environment variables applied to every session.
func WithEnv(env map[string]string) ShellOption {
	return func(s *Shell) {
		s.env = env
	}
}

// NewShell creates a shell runner executing on localhost by default.
func NewShell(options ...ShellOption) *Shell {
	s := &Shell{
		hostURL:  "localhost",
		sessions: make(map[string]*gosh.Service),
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Execute runs the command in the session's shell, honouring the context
// deadline, and captures exit code, output and duration.
func (s *Shell) Execute(ctx context.Context, sessionID, command string) (*model.ExecutionResult, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get shell session: %w", err)
	}

	var runOptions []runner.Option
	if deadline, ok := ctx.Deadline(); ok {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			return nil, ctx.Err()
		}
		runOptions = append(runOptions, runner.WithTimeout(int(timeout.Milliseconds())))
	}

	started := clock.Now()
	stdout, status, err := session.Run(ctx, command, runOptions...)
	result := &model.ExecutionResult{
		ExitCode: status,
		Duration: clock.Now().Sub(started),
	}
	if status == 0 && err == nil {
		result.Stdout = stdout
		return result, nil
	}
	// gosh reports failures through the combined stream; surface it as stderr.
	result.Stderr = stdout
	if result.Stderr == "" && err != nil {
		result.Stderr = err.Error()
	}
	if err == nil {
		err = fmt.Errorf("command exited with status %d", status)
	}
	return result, err
}

// session retrieves or creates the shell session for the session id.
func (s *Shell) session(ctx context.Context, sessionID string) (*gosh.Service, error) {
	s.mux.Lock()
	defer s.mux.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		return session, nil
	}

	var envOptions []runner.Option
	if len(s.env) > 0 {
		envOptions = append(envOptions, runner.WithEnvironment(s.env))
	}

	var service *gosh.Service
	var err error
	if url.Host(s.hostURL) == "localhost" {
		service, err = gosh.New(ctx, local.New(envOptions...))
	} else {
		config, cfgErr := s.sshConfig(ctx)
		if cfgErr != nil {
			return nil, fmt.Errorf("failed to get SSH config: %w", cfgErr)
		}
		sshHost := url.Host(s.hostURL)
		if !strings.Contains(sshHost, ":") {
			sshHost += ":22"
		}
		service, err = gosh.New(ctx, rssh.New(sshHost, config, envOptions...))
	}
	if err != nil {
		return nil, err
	}
	s.sessions[sessionID] = service
	return service, nil
}

// sshConfig resolves SSH credentials from the configured secret resource.
func (s *Shell) sshConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	credentials := s.credentials
	if credentials == "" {
		credentials = "localhost"
	}
	secrets := secret.New()
	generic, err := secrets.GetCredentials(ctx, credentials)
	if err != nil {
		return nil, err
	}
	return generic.SSH.Config(ctx)
}

// Close releases all shell sessions held by this runner.
func (s *Shell) Close() error {
	s.mux.Lock()
	defer s.mux.Unlock()
	var errs []string
	for id, session := range s.sessions {
		if err := session.Close(); err != nil {
			errs = append(errs, fmt.Sprintf("failed to close session %s: %v", id, err))
		}
	}
	s.sessions = make(map[string]*gosh.Service)
	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %s", strings.Join(errs, "; "))
	}
	return nil
}

var _ Runner = (*Shell)(nil)
