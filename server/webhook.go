package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

const (
	eventTypeSubscriptionValidation = "Microsoft.EventGrid.SubscriptionValidationEvent"
	eventTypeIncomingCall           = "Microsoft.Communication.IncomingCall"
)

// CallController answers an incoming call and points its media stream at the
// given WebSocket URL. Implementations wrap the call platform's REST API.
type CallController interface {
	Answer(ctx context.Context, incomingCallContext, callbackURL, mediaStreamURL string) (callConnectionID string, err error)
}

type gridEvent struct {
	EventType string `json:"eventType"`
	Data      struct {
		ValidationCode      string `json:"validationCode"`
		IncomingCallContext string `json:"incomingCallContext"`
		From                struct {
			Kind        string `json:"kind"`
			RawID       string `json:"rawId"`
			PhoneNumber struct {
				Value string `json:"value"`
			} `json:"phoneNumber"`
		} `json:"from"`
	} `json:"data"`
}

// handleIncomingCall processes the call platform's event-grid webhook. The
// subscription validation handshake is answered inline; IncomingCall events
// are handed to the call controller.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read failed", http.StatusBadRequest)
		return
	}

	var events []gridEvent
	if err := sonic.Unmarshal(body, &events); err != nil {
		s.log.Warn().Err(err).Msg("unparseable incoming-call webhook")
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// A validation handshake can share a batch with real events, so the
	// response is written without abandoning the rest of the payload.
	responded := false
	for _, event := range events {
		switch event.EventType {
		case eventTypeSubscriptionValidation:
			s.log.Info().Msg("validating webhook subscription")
			w.Header().Set("Content-Type", "application/json")
			resp, _ := sonic.Marshal(map[string]string{
				"validationResponse": event.Data.ValidationCode,
			})
			w.Write(resp)
			responded = true

		case eventTypeIncomingCall:
			callerID := event.Data.From.RawID
			if event.Data.From.Kind == "phoneNumber" {
				callerID = event.Data.From.PhoneNumber.Value
			}
			s.answerCall(r, event.Data.IncomingCallContext, callerID)

		default:
			s.log.Debug().Str("type", event.EventType).Msg("unhandled webhook event")
		}
	}

	if !responded {
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) answerCall(r *http.Request, incomingCallContext, callerID string) {
	if s.calls == nil {
		s.log.Info().Str("caller", callerID).Msg("incoming call received, no call controller configured")
		return
	}

	callbackURL := fmt.Sprintf("https://%s/api/callbacks/%s?%s",
		r.Host, uuid.New().String(), url.Values{"callerId": {callerID}}.Encode())
	mediaStreamURL := "wss://" + r.Host + "/ws"

	connectionID, err := s.calls.Answer(r.Context(), incomingCallContext, callbackURL, mediaStreamURL)
	if err != nil {
		s.log.Error().Err(err).Str("caller", callerID).Msg("failed to answer call")
		return
	}
	s.log.Info().Str("caller", callerID).Str("connection", connectionID).Msg("answered incoming call")
}

type callbackEvent struct {
	Type string `json:"type"`
	Data struct {
		CallConnectionID  string `json:"callConnectionId"`
		CorrelationID     string `json:"correlationId"`
		MediaStreamUpdate struct {
			ContentType                string `json:"contentType"`
			MediaStreamingStatus       string `json:"mediaStreamingStatus"`
			MediaStreamingStatusDetail string `json:"mediaStreamingStatusDetails"`
		} `json:"mediaStreamingUpdate"`
		ResultInformation struct {
			Code    int    `json:"code"`
			SubCode int    `json:"subCode"`
			Message string `json:"message"`
		} `json:"resultInformation"`
	} `json:"data"`
}

// handleCallbacks logs call lifecycle notifications from the platform.
// Processing never fails the request; the platform retries non-200s and
// there is nothing to retry here.
func (s *Server) handleCallbacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	contextID := strings.TrimPrefix(r.URL.Path, "/api/callbacks/")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var events []callbackEvent
	if err := sonic.Unmarshal(body, &events); err != nil {
		s.log.Warn().Err(err).Str("context", contextID).Msg("unparseable callback payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, event := range events {
		log := s.log.Sub("callback")
		switch event.Type {
		case "Microsoft.Communication.CallConnected":
			log.Info().Str("connection", event.Data.CallConnectionID).
				Str("correlation", event.Data.CorrelationID).Msg("call connected")
		case "Microsoft.Communication.MediaStreamingStarted":
			log.Info().Str("status", event.Data.MediaStreamUpdate.MediaStreamingStatus).
				Msg("media streaming started")
		case "Microsoft.Communication.MediaStreamingStopped":
			log.Info().Str("status", event.Data.MediaStreamUpdate.MediaStreamingStatus).
				Msg("media streaming stopped")
		case "Microsoft.Communication.MediaStreamingFailed":
			log.Warn().Int("code", event.Data.ResultInformation.Code).
				Int("subcode", event.Data.ResultInformation.SubCode).
				Str("message", event.Data.ResultInformation.Message).
				Msg("media streaming failed")
		case "Microsoft.Communication.CallDisconnected":
			log.Info().Str("connection", event.Data.CallConnectionID).Msg("call disconnected")
		default:
			log.Debug().Str("type", event.Type).Msg("unhandled callback event")
		}
	}

	w.WriteHeader(http.StatusOK)
}
