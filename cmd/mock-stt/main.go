// Mock speech-to-text server for local development. It speaks both
// recognizer dialects the service supports: the Google Web Speech v2
// line-delimited JSON response and the Whisper verbose_json response.
// Point the transcription endpoint at it to run the assistant without
// cloud credentials.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

var (
	port  = flag.Int("port", 8090, "Port to listen on")
	text  = flag.String("text", "this is a mock transcript", "Transcript returned for every request")
	delay = flag.Duration("delay", 200*time.Millisecond, "Simulated recognition latency")
)

// googleHandler emulates POST /speech-api/v2/recognize. The real
// service returns one empty result line followed by the recognition
// result, so the mock does the same.
func googleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	if query.Get("key") == "" {
		http.Error(w, "Missing key parameter", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Error reading body", http.StatusBadRequest)
		return
	}

	log.Printf("Google-style request: lang=%s, %d bytes of %s",
		query.Get("lang"), len(body), r.Header.Get("Content-Type"))

	time.Sleep(*delay)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintln(w, `{"result":[]}`)

	result := map[string]interface{}{
		"result": []map[string]interface{}{
			{
				"alternative": []map[string]interface{}{
					{"transcript": *text, "confidence": 0.92},
				},
				"final": true,
			},
		},
		"result_index": 0,
	}
	json.NewEncoder(w).Encode(result)
}

// whisperHandler emulates POST /v1/audio/transcriptions with
// response_format=verbose_json.
func whisperHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	size, _ := io.Copy(io.Discard, file)

	log.Printf("Whisper-style request: model=%s, language=%s, file=%s (%d bytes)",
		r.FormValue("model"), r.FormValue("language"), header.Filename, size)

	time.Sleep(*delay)

	response := map[string]interface{}{
		"task":     "transcribe",
		"language": r.FormValue("language"),
		"duration": 2.5,
		"text":     *text,
		"segments": []map[string]interface{}{
			{
				"id":             0,
				"start":          0.0,
				"end":            2.5,
				"text":           *text,
				"no_speech_prob": 0.04,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "mock-stt"})
}

func main() {
	flag.Parse()

	http.HandleFunc("/speech-api/v2/recognize", googleHandler)
	http.HandleFunc("/v1/audio/transcriptions", whisperHandler)
	http.HandleFunc("/health", healthHandler)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock STT server listening on %s", addr)
	log.Printf("  Google endpoint:  http://localhost%s/speech-api/v2/recognize", addr)
	log.Printf("  Whisper endpoint: http://localhost%s/v1/audio/transcriptions", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
