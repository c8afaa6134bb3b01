package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/satriahrh/voicerelay/adapters/storage"
	"github.com/satriahrh/voicerelay/domain/entities"
	"github.com/satriahrh/voicerelay/internal/api"
	"github.com/satriahrh/voicerelay/internal/auth"
	"github.com/satriahrh/voicerelay/internal/config"
	"github.com/satriahrh/voicerelay/internal/frame"
	ws "github.com/satriahrh/voicerelay/internal/websocket"
)

type options struct {
	server         string
	audioFile      string
	audioFormat    string
	chatFile       string
	speaker        string
	voice          string
	responseFormat string
	outDir         string
	useWebSocket   bool
	token          string
	jwtSecret      string
	clientID       string
	maxFieldSize   int
	debug          bool
}

func main() {
	var opts options
	flag.StringVar(&opts.server, "server", "http://127.0.0.1:8001", "relay base URL")
	flag.StringVar(&opts.audioFile, "audio", "", "recorded question to send (required)")
	flag.StringVar(&opts.audioFormat, "format", "", "audio container; defaults to the file extension")
	flag.StringVar(&opts.chatFile, "chat", "", "optional JSON file with prior chat messages")
	flag.StringVar(&opts.speaker, "speaker", "", "speaker name for the transcribed message")
	flag.StringVar(&opts.voice, "voice", "", "synthesis voice")
	flag.StringVar(&opts.responseFormat, "response-format", "mp3", "audio format of the reply parts")
	flag.StringVar(&opts.outDir, "out", "audio", "directory the reply parts are written to")
	flag.BoolVar(&opts.useWebSocket, "ws", false, "use the WebSocket endpoint instead of HTTP")
	flag.StringVar(&opts.token, "token", "", "bearer token for the relay")
	flag.StringVar(&opts.jwtSecret, "jwt-secret", "", "mint a client token with this secret when -token is empty")
	flag.StringVar(&opts.clientID, "client-id", "cli", "client id for minted tokens")
	flag.IntVar(&opts.maxFieldSize, "max-field-size", frame.DefaultMaxFieldSize, "largest accepted frame field in bytes")
	flag.BoolVar(&opts.debug, "debug", false, "verbose logging")
	flag.Parse()

	logger, err := config.NewLogger(config.LoggingConfig{Env: "development", Level: "info", Debug: opts.debug})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil {
		logger.Error("Voice request failed", zap.Error(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	if opts.audioFile == "" {
		return errors.New("-audio is required")
	}

	body, err := buildRequest(opts)
	if err != nil {
		return err
	}

	token := opts.token
	if token == "" && opts.jwtSecret != "" {
		token, _, err = auth.NewAuthenticator(opts.jwtSecret, logger).GenerateClientToken(opts.clientID)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
	}

	store := storage.NewFileStore(opts.outDir, logger)
	start := time.Now()

	var rec *receiver
	if opts.useWebSocket {
		rec, err = runWebSocket(ctx, opts, body, token, store, logger)
	} else {
		rec, err = runHTTP(ctx, opts, body, token, store, logger)
	}
	if rec != nil {
		fmt.Println()
		logger.Info("Reply received",
			zap.Int("parts", rec.parts),
			zap.Int("textLength", len(rec.Text())),
			zap.Strings("files", rec.saved),
			zap.Duration("elapsed", time.Since(start)))
	}
	return err
}

func buildRequest(opts options) (api.VoiceRequest, error) {
	audio, err := os.ReadFile(opts.audioFile)
	if err != nil {
		return api.VoiceRequest{}, fmt.Errorf("read audio: %w", err)
	}

	format := opts.audioFormat
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(opts.audioFile), ".")
	}

	chat := []entities.ChatMessage{}
	if opts.chatFile != "" {
		data, err := os.ReadFile(opts.chatFile)
		if err != nil {
			return api.VoiceRequest{}, fmt.Errorf("read chat: %w", err)
		}
		if err := json.Unmarshal(data, &chat); err != nil {
			return api.VoiceRequest{}, fmt.Errorf("parse chat: %w", err)
		}
	}

	return api.VoiceRequest{
		SpeakerName:    opts.speaker,
		Voice:          opts.voice,
		Chat:           chat,
		Audio:          base64.StdEncoding.EncodeToString(audio),
		AudioFormat:    format,
		ResponseFormat: opts.responseFormat,
	}, nil
}

func runHTTP(ctx context.Context, opts options, body api.VoiceRequest, token string, store *storage.FileStore, logger *zap.Logger) (*receiver, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(opts.server, "/")+"/voice", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post voice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, fmt.Errorf("relay returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	format := resp.Header.Get(api.HeaderAudioFormat)
	if format == "" {
		format = opts.responseFormat
	}
	rec := newReceiver(store, format, os.Stdout, logger)

	if err := frame.Decode(ctx, resp.Body, rec.handle, frame.WithMaxFieldSize(opts.maxFieldSize)); err != nil {
		return rec, fmt.Errorf("decode stream: %w", err)
	}
	if msg := resp.Trailer.Get(api.HeaderVoiceError); msg != "" {
		return rec, fmt.Errorf("relay reported: %s", msg)
	}
	return rec, nil
}

func runWebSocket(ctx context.Context, opts options, body api.VoiceRequest, token string, store *storage.FileStore, logger *zap.Logger) (*receiver, error) {
	u, err := url.Parse(strings.TrimRight(opts.server, "/") + "/voice/ws")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the user interrupts.
	defer closeOnCancel(ctx, conn)()

	if err := conn.WriteJSON(ws.VoiceRequestMessage{Type: ws.MessageTypeVoiceRequest, VoiceRequest: body}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	rec := newReceiver(store, body.ResponseFormat, os.Stdout, logger)
	decoder := frame.NewDecoder(frame.WithMaxFieldSize(opts.maxFieldSize))

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if cerr := decoder.Close(); cerr != nil {
				return rec, fmt.Errorf("decode stream: %w", cerr)
			}
			return rec, fmt.Errorf("connection closed before voice_end: %w", err)
		}

		if mt == websocket.BinaryMessage {
			frames, err := decoder.Feed(data)
			for _, f := range frames {
				if herr := rec.handle(f); herr != nil {
					return rec, herr
				}
			}
			if err != nil {
				return rec, fmt.Errorf("decode stream: %w", err)
			}
			continue
		}

		var msg ws.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return rec, fmt.Errorf("unexpected text message: %w", err)
		}
		switch msg.Type {
		case ws.MessageTypeVoiceEnd:
			if err := decoder.Close(); err != nil {
				return rec, fmt.Errorf("decode stream: %w", err)
			}
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return rec, nil
		case ws.MessageTypeError:
			for _, fe := range msg.Errors {
				logger.Warn("Invalid field", zap.String("path", fe.Path), zap.String("message", fe.Message))
			}
			return rec, fmt.Errorf("relay reported %s: %s %s", msg.Code, msg.Message, msg.Details)
		default:
			logger.Warn("Ignoring message", zap.String("type", string(msg.Type)))
		}
	}
}

// closeOnCancel closes c once ctx is done. The returned stop function ends
// the watch without closing c and waits for the watcher to exit.
func closeOnCancel(ctx context.Context, c io.Closer) (stop func()) {
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}
