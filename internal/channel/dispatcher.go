package channel

import (
	"context"
	"fmt"

	"beacon/internal/domain"
	"beacon/internal/llm"
	"beacon/internal/logging"
	"beacon/internal/tts"
)

// TextGenerator produces message content when a job carries no template.
type TextGenerator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.Generation, []llm.Attempt, error)
}

// SpeechSynthesizer turns generated text into audio for voice delivery.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// Task is one delivery unit handed to the dispatcher.
type Task struct {
	Job      domain.ScheduledJob
	Settings domain.TenantSettings
	Pref     *domain.UserJobPreference
	// Content carries pre-approved text (an intervention's message). When
	// empty the dispatcher falls back to the job template, then to
	// generation.
	Content string
}

// Dispatcher resolves the effective channel and delivers one message. It
// performs no cross-channel retry: a failed voice attempt is reported failed
// and is never re-sent over SMS.
type Dispatcher struct {
	caller    VoiceCaller
	messenger Messenger
	generator TextGenerator
	speech    SpeechSynthesizer
	audio     AudioStore
	logger    logging.Logger
}

// NewDispatcher wires the dispatcher. generator, speech and audio may be nil
// when every job is template-scripted.
func NewDispatcher(caller VoiceCaller, messenger Messenger, generator TextGenerator, speech SpeechSynthesizer, audio AudioStore, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		caller:    caller,
		messenger: messenger,
		generator: generator,
		speech:    speech,
		audio:     audio,
		logger:    logging.OrNop(logger),
	}
}

// Dispatch delivers the task over its effective channel (user preference
// wins over the job default) and reports a normalized result.
func (d *Dispatcher) Dispatch(ctx context.Context, task Task) DispatchResult {
	ch := task.Pref.EffectiveChannel(task.Job)
	res := DispatchResult{Channel: ch}

	if !ch.Valid() {
		res.Err = fmt.Errorf("no valid channel for job %s (resolved %q)", task.Job.Name, ch)
		return res
	}
	if task.Settings.PhoneNumber == "" {
		res.Err = fmt.Errorf("tenant %s has no phone number", task.Settings.TenantID)
		return res
	}

	content, scripted, err := d.resolveContent(ctx, task)
	if err != nil {
		res.Err = fmt.Errorf("content generation: %w", err)
		return res
	}
	res.Content = content

	switch ch {
	case domain.ChannelVoice:
		res.ProviderCallID, res.Err = d.placeCall(ctx, task, content, scripted)
	case domain.ChannelSMS:
		res.ProviderCallID, res.Err = d.messenger.Send(ctx, SMSRequest{
			To:   task.Settings.PhoneNumber,
			Body: content,
		})
	}
	res.Success = res.Err == nil
	if res.Success {
		d.logger.Info("dispatched job %s to tenant %s via %s (id=%s)",
			task.Job.Name, task.Settings.TenantID, ch, res.ProviderCallID)
	}
	return res
}

// resolveContent picks the message text: pre-approved content, then the job
// template, then dynamic generation. scripted reports that the text needs no
// speech synthesis because the voice provider can read it directly.
func (d *Dispatcher) resolveContent(ctx context.Context, task Task) (content string, scripted bool, err error) {
	if task.Content != "" {
		return task.Content, true, nil
	}
	if task.Job.MessageTemplate != "" {
		return task.Job.MessageTemplate, true, nil
	}
	if d.generator == nil {
		return "", false, fmt.Errorf("job %s has no template and no generator is configured", task.Job.Name)
	}

	gen, _, err := d.generator.Generate(ctx, llm.GenerateRequest{
		Category: llm.CategoryConversational,
		System:   "You write one short, warm proactive message for a scheduled check-in. No markup, no emoji.",
		Prompt:   fmt.Sprintf("Write the %s message for this user.", task.Job.Name),
		Language: task.Settings.Language,
	})
	if err != nil {
		return "", false, err
	}
	return gen.Content, false, nil
}

// placeCall synthesizes dynamic content into audio first; scripted prompts
// go out as provider-side speech.
func (d *Dispatcher) placeCall(ctx context.Context, task Task, content string, scripted bool) (string, error) {
	req := CallRequest{To: task.Settings.PhoneNumber, Text: content}

	if !scripted && d.speech != nil && d.audio != nil {
		synth, err := d.speech.Synthesize(ctx, tts.Request{
			Text:     content,
			Language: task.Settings.Language,
		})
		if err != nil {
			return "", fmt.Errorf("speech synthesis: %w", err)
		}
		url, err := d.audio.Publish(ctx, synth.Audio, synth.ContentType)
		if err != nil {
			return "", fmt.Errorf("publish audio: %w", err)
		}
		req.AudioURL = url
	}
	return d.caller.Call(ctx, req)
}
