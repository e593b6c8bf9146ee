package archive

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	key := objectKey("usr_1", "res_2", at)
	want := "resumes/usr_1/res_2/20260314T092653Z.json"
	if key != want {
		t.Errorf("objectKey = %q, want %q", key, want)
	}
}

func TestBundleRoundTrip(t *testing.T) {
	bundle := Bundle{
		ResumeID: "res_1",
		OwnerID:  "usr_1",
		Title:    "Backend Engineer",
		Content:  json.RawMessage(`{"summary":"hi"}`),
		Versions: []VersionSnapshot{
			{ID: "ver_1", Seq: 1, Name: "Version 1", Content: json.RawMessage(`{}`)},
		},
		ArchivedAt: time.Now().UTC(),
		Reason:     "resume deleted",
	}

	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"seq":1`) {
		t.Errorf("encoded bundle missing version seq: %s", data)
	}

	var decoded Bundle
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.ResumeID != "res_1" || len(decoded.Versions) != 1 || decoded.Versions[0].Seq != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
}
