package simulate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Stream frame types understood by the service.
const (
	frameAct     = "act"
	frameDismiss = "dismiss"
	phaseRespond = "respond"
	statePlaying = "playing"
	defaultReach = 4
)

var errStreamClosed = errors.New("stream closed before the session finished")

type startRequest struct {
	PatientID string         `json:"patient_id"`
	Mode      string         `json:"mode"`
	Profile   map[string]any `json:"profile"`
}

type streamFrame struct {
	Type   string `json:"type"`
	Target int    `json:"target,omitempty"`
}

// playSessions plays HostedSessions sessions concurrently, spreading them
// over the given patients.
func playSessions(ctx context.Context, config *Config, patients []string, stats *Stats) ([]HostedSession, error) {
	if config.HostedSessions == 0 || len(patients) == 0 {
		return nil, nil
	}
	log.Printf("🎮 Playing %d hosted sessions with %d workers...", config.HostedSessions, config.Workers)

	client := newHTTPClient(config.BaseURL, config.Timeout)

	results := make([]HostedSession, config.HostedSessions)
	var (
		played int64
		failed int64
	)

	indexChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range indexChan {
				if ctx.Err() != nil {
					return
				}
				patientID := patients[index%len(patients)]
				hs, err := playSingleSession(ctx, client, config, patientID)
				if err != nil {
					atomic.AddInt64(&failed, 1)
					if config.Verbose {
						log.Printf("⚠️  Session for %s failed: %v", patientID, err)
					}
					continue
				}
				results[index] = hs
				atomic.AddInt64(&played, 1)
				if config.Verbose {
					log.Printf("🏁 Session %s finished %s with score %d", hs.SessionID, hs.State, hs.Score)
				}
			}
		}()
	}

	go func() {
		defer close(indexChan)
		for i := 0; i < config.HostedSessions; i++ {
			select {
			case <-ctx.Done():
				return
			case indexChan <- i:
			}
		}
	}()

	wg.Wait()

	stats.SessionsPlayed = int(atomic.LoadInt64(&played))
	stats.SessionsFailed = int(atomic.LoadInt64(&failed))

	out := make([]HostedSession, 0, stats.SessionsPlayed)
	for _, hs := range results {
		if hs.SessionID != "" {
			out = append(out, hs)
		}
	}

	log.Printf("✅ Hosted sessions completed: played %d, failed %d", stats.SessionsPlayed, stats.SessionsFailed)
	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("sessions interrupted: %w", err)
	}
	return out, nil
}

// playSingleSession starts a session and plays it to the end over the
// stream, answering every response phase with a random target.
func playSingleSession(ctx context.Context, client *HTTPClient, config *Config, patientID string) (HostedSession, error) {
	resp, err := client.Post(ctx, "/sessions", startRequest{
		PatientID: patientID,
		Mode:      config.Mode,
		Profile:   map[string]any{"profession": "simulated", "difficulty": config.Difficulty},
	})
	if err != nil {
		return HostedSession{}, fmt.Errorf("start session: %w", err)
	}
	var snap Snapshot
	if err := decodeResponse(resp, &snap); err != nil {
		return HostedSession{}, fmt.Errorf("decode session: %w", err)
	}
	if resp.StatusCode != StatusCreated {
		return HostedSession{}, fmt.Errorf("start session: status %d", resp.StatusCode)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, client.wsURL("/sessions/"+snap.SessionID+"/stream"), nil)
	if err != nil {
		return HostedSession{}, fmt.Errorf("open stream: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	hs := HostedSession{PatientID: patientID, SessionID: snap.SessionID}
	answered := ""
	for {
		var view Snapshot
		if err := conn.ReadJSON(&view); err != nil {
			if hs.State != "" && hs.State != statePlaying {
				return hs, nil
			}
			return hs, fmt.Errorf("%w: %w", errStreamClosed, err)
		}
		hs.State, hs.Score, hs.Rounds = view.State, view.Score, view.CurrentRound
		if view.State != statePlaying {
			continue
		}

		frame, key, ok := nextMove(view, answered)
		if !ok {
			continue
		}
		answered = key
		_ = conn.SetWriteDeadline(time.Now().Add(config.Timeout))
		if err := conn.WriteJSON(frame); err != nil {
			return hs, fmt.Errorf("send %s: %w", frame.Type, err)
		}
	}
}

// nextMove picks the frame to send for view. answered is the key of the
// last round already answered, so each response phase gets one input.
func nextMove(view Snapshot, answered string) (streamFrame, string, bool) {
	if view.ShowInstructions {
		return streamFrame{Type: frameDismiss}, answered, true
	}
	if view.Round == nil || view.Round.Phase != phaseRespond {
		return streamFrame{}, answered, false
	}
	key := fmt.Sprintf("%s/%d", view.Round.Game, view.Round.Round)
	if key == answered {
		return streamFrame{}, answered, false
	}
	reach := max(len(view.Round.Markers), len(view.Round.Tasks), len(view.Round.Grid))
	if reach == 0 {
		reach = defaultReach
	}
	return streamFrame{Type: frameAct, Target: getRandomInt(reach)}, key, true
}
