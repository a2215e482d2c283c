package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTranslate(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Fatalf("request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Hallo Welt"}}]}`)
	}))
	defer srv.Close()

	tr := NewTranslator("sk-test", WithBaseURL(srv.URL))
	out, err := tr.Translate(context.Background(), "Hello world", "English", "German")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Hallo Welt" {
		t.Errorf("translation = %q", out)
	}

	if gotReq["model"] != DefaultChatModel {
		t.Errorf("model = %v", gotReq["model"])
	}
	msgs, _ := gotReq["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d; want system + user", len(msgs))
	}
	system, _ := msgs[0].(map[string]any)
	content, _ := system["content"].(string)
	if !strings.Contains(content, "English") || !strings.Contains(content, "German") {
		t.Errorf("system prompt = %q; want both languages", content)
	}
}

func TestTranslate_Validation(t *testing.T) {
	tr := NewTranslator("sk-test")
	if _, err := tr.Translate(context.Background(), "", "en", "de"); !errors.Is(err, ErrEmptyInput) {
		t.Errorf("empty text error = %v", err)
	}
	if _, err := tr.Translate(context.Background(), "hi", "en", ""); err == nil {
		t.Error("missing target language accepted")
	}
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("multipart: %v", err)
		}
		if got := r.FormValue("model"); got != DefaultTranscribeModel {
			t.Errorf("model = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file part: %v", err)
		}
		defer file.Close()
		if header.Filename != "clip.webm" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"hello there"}`)
	}))
	defer srv.Close()

	tr := NewTranscriber("sk-test", WithBaseURL(srv.URL))
	text, err := tr.Transcribe(context.Background(), []byte("RIFFdata"), "clip.webm")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
}

func TestSynthesize(t *testing.T) {
	audio := []byte{0xFF, 0xF3, 0x01, 0x02}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/speech") {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if req["input"] != "guten tag" {
			t.Errorf("input = %v", req["input"])
		}
		if req["voice"] != "nova" {
			t.Errorf("voice = %v", req["voice"])
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer srv.Close()

	s := NewSynthesizer("sk-test", WithBaseURL(srv.URL))
	out, err := s.Synthesize(context.Background(), "guten tag", "nova")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(out) != string(audio) {
		t.Errorf("audio = %x", out)
	}
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		if req["voice"] != DefaultVoice {
			t.Errorf("voice = %v; want default", req["voice"])
		}
		w.Write([]byte{0x00})
	}))
	defer srv.Close()

	s := NewSynthesizer("sk-test", WithBaseURL(srv.URL))
	if _, err := s.Synthesize(context.Background(), "hi", ""); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
}
