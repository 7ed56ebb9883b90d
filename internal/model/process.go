package model

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
)

// ServerOptions configures a managed Coqui tts-server child process.
type ServerOptions struct {
	Executable string
	ModelName  string
	ModelID    string
	Port       int
	GPU        bool
	SpeakerID  string
	LanguageID string
	Logger     *slog.Logger
}

// Server is a Coqui tts-server started and owned by this process. The child
// loads the model once; synthesis goes through its HTTP API.
type Server struct {
	*Remote

	cmd    *exec.Cmd
	exited chan error
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

func (o ServerOptions) args() []string {
	args := []string{"--model_name", o.ModelName, "--port", strconv.Itoa(o.Port)}
	if o.GPU {
		args = append(args, "--use_cuda", "true")
	}
	return args
}

// StartServer launches tts-server and waits until it answers HTTP requests or
// ctx expires. The child is killed if it never becomes ready.
func StartServer(ctx context.Context, opts ServerOptions) (*Server, error) {
	if opts.ModelName == "" {
		return nil, errors.New("model name is required")
	}
	if opts.Port <= 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid tts-server port %d", opts.Port)
	}
	exe := opts.Executable
	if exe == "" {
		exe = "tts-server"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	remote, err := NewRemote(RemoteOptions{
		BaseURL:    "http://127.0.0.1:" + strconv.Itoa(opts.Port),
		ModelID:    opts.ModelID,
		SpeakerID:  opts.SpeakerID,
		LanguageID: opts.LanguageID,
	})
	if err != nil {
		return nil, err
	}

	// #nosec G204 -- executable and model name come from operator config.
	cmd := exec.Command(exe, opts.args()...)
	out := &lineLogger{logger: logger.With(slog.String("component", "tts-server"))}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", exe, err)
	}

	s := &Server{
		Remote: remote,
		cmd:    cmd,
		exited: make(chan error, 1),
		done:   make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		out.flush()
		logger.Info("tts-server exited", slog.Any("error", err))
		s.exited <- err
		close(s.done)
	}()

	if err := s.waitReady(ctx, s.exited); err != nil {
		_ = s.Close()
		return nil, err
	}

	logger.Debug("tts-server ready",
		slog.Int("pid", cmd.Process.Pid),
		slog.Int("port", opts.Port),
	)
	return s, nil
}

// Close stops the child process and waits for it to exit.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
		default:
			if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				s.closeErr = fmt.Errorf("kill tts-server: %w", err)
				return
			}
			<-s.done
		}
	})
	return s.closeErr
}

// Done is closed when the child process exits.
func (s *Server) Done() <-chan struct{} { return s.done }

// lineLogger forwards child output to the logger one line at a time.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	buf    bytes.Buffer
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf.Write(p)
	for {
		line, err := l.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			l.buf.Reset()
			l.buf.Write(line)
			break
		}
		l.emit(line)
	}
	return len(p), nil
}

func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.buf.Len() > 0 {
		l.emit(l.buf.Bytes())
		l.buf.Reset()
	}
}

func (l *lineLogger) emit(line []byte) {
	text := string(bytes.TrimRight(line, "\r\n"))
	if text == "" {
		return
	}
	l.logger.Debug(text)
}
