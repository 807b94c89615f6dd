package platform

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig(t *testing.T) {
	// /tmp/
	//   project/ (shelf.yaml)
	//     subdir/
	//       nested/
	//   empty/
	//     shelf.yaml/ (a directory, not a config)

	baseDir := t.TempDir()
	projectDir := filepath.Join(baseDir, "project")
	subDir := filepath.Join(projectDir, "subdir")
	nestedDir := filepath.Join(subDir, "nested")
	emptyDir := filepath.Join(baseDir, "empty")

	if err := os.MkdirAll(nestedDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(emptyDir, DefaultConfigName), 0755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(projectDir, DefaultConfigName)
	if err := os.WriteFile(want, []byte("server: {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		startPath string
		want      string
		wantErr   bool
	}{
		{name: "Start at Project", startPath: projectDir, want: want},
		{name: "Start in Subdir", startPath: subDir, want: want},
		{name: "Start Nested Deeply", startPath: nestedDir, want: want},
		{name: "Directory Named Like Config", startPath: emptyDir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindConfig(tt.startPath)
			if (err != nil) != tt.wantErr {
				t.Errorf("FindConfig() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != "" && filepath.Clean(got) != filepath.Clean(tt.want) {
				t.Errorf("FindConfig() = %v, want %v", got, tt.want)
			}
		})
	}
}
