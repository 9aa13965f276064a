package http

import (
	"context"
	"html/template"
	"net/http"
	"slices"

	"dompet/internal/assistant"
	"dompet/internal/core"
	"dompet/internal/log"
	"dompet/internal/timeline"
)

type messageView struct {
	ID   string
	Time string
	HTML template.HTML
	// Steps is set for a message that was just created: growing renderings
	// of it, one sentence more each, ending with the whole message.
	Steps []template.HTML
}

type assistantView struct {
	Dates    timeline.Index
	Selected string
	Messages []messageView
}

// assistantView renders the selected date of v. With fresh set, the last
// message of that date is revealed a sentence at a time.
func (s *Server) assistantView(v timeline.View, fresh bool) assistantView {
	out := assistantView{Dates: v.Index(), Selected: v.SelectedDate()}
	records := v.Selected()
	for i, rec := range records {
		m := messageView{
			ID:   rec.ID,
			Time: clockTime(rec.Timestamp, s.location),
		}
		if fresh && i == len(records)-1 {
			m.Steps = assistant.RevealSteps(rec.Content)
		} else {
			m.HTML = assistant.Render(rec.Content)
		}
		out.Messages = append(out.Messages, m)
	}
	return out
}

// listAIResponses serves the stored responses from the cache or the backend.
func (s *Server) listAIResponses(ctx context.Context) ([]core.AIResponse, error) {
	if list, ok := s.aiCache.Get(aiTimelineKey); ok {
		return list, nil
	}
	s.aiMu.Lock()
	gen := s.aiGen
	s.aiMu.Unlock()

	list, err := s.store.ListAIResponses(ctx)
	if err != nil {
		return nil, err
	}

	// A create that finished while the list was loading may be missing
	// from it; leave the cache empty so the next read reloads.
	s.aiMu.Lock()
	if s.aiGen == gen {
		s.aiCache.Set(aiTimelineKey, list)
	}
	s.aiMu.Unlock()
	return list, nil
}

// rememberAIResponse appends a created response to the cached list. The
// cached slice is clipped first so readers of the old list never see it.
func (s *Server) rememberAIResponse(created core.AIResponse) {
	s.aiMu.Lock()
	defer s.aiMu.Unlock()
	s.aiGen++
	if list, ok := s.aiCache.Get(aiTimelineKey); ok {
		s.aiCache.Set(aiTimelineKey, append(slices.Clip(list), created))
	}
}

func (s *Server) handleAssistant(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	list, err := s.listAIResponses(ctx)
	if err != nil {
		s.writeUIError(w, r, log.OpList, err)
		return
	}
	view := timeline.NewView(core.AIResponseRecords(list))
	if date := r.URL.Query().Get("date"); date != "" && !view.SelectOrDefault(date) {
		log.FromContext(ctx).DebugContext(ctx, "Unknown date requested, showing latest",
			log.FieldDateKey, date)
	}
	s.render(w, r, http.StatusOK, "assistant_panel", s.assistantView(view, false))
}

// handleCreateAssistantResponse asks the backend for a new insight and shows
// the panel at the new message's date.
func (s *Server) handleCreateAssistantResponse(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	list, err := s.listAIResponses(ctx)
	if err != nil {
		s.writeUIError(w, r, log.OpList, err)
		return
	}
	view := timeline.NewView(core.AIResponseRecords(list))

	created, err := s.store.CreateAIResponse(ctx)
	s.metrics.AIResponseCreated("ui", err)
	if err != nil {
		s.writeUIError(w, r, log.OpGenerate, err)
		return
	}
	s.rememberAIResponse(created)

	rec := created.Record()
	view = view.Append(rec)
	log.FromContext(ctx).InfoContext(ctx, "AI response created", log.FieldDateKey, rec.Key())

	body, err := s.renderBytes("assistant_panel", s.assistantView(view, true))
	if err != nil {
		s.writeUIError(w, r, log.OpRender, err)
		return
	}
	NewHTMXResponse().
		TriggerSuccessNotification("Insight baru siap").
		BodyHTML(body).
		Write(w)
}
