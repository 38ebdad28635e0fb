package stages

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEveryVersionHasAllStages(t *testing.T) {
	for _, version := range []string{"1.0", "2.0"} {
		for _, name := range Names {
			data, err := fs.ReadFile(FS(), Path(version, name))
			if err != nil {
				t.Fatalf("ReadFile(%s, %s) error = %v", version, name, err)
			}
			if !strings.Contains(string(data), `name="`+name+`"`) {
				t.Fatalf("stage %s/%s does not declare its name", version, name)
			}
			if !strings.Contains(string(data), `version="`+version+`"`) {
				t.Fatalf("stage %s/%s does not declare its version", version, name)
			}
		}
	}
}

func TestPath(t *testing.T) {
	if got := Path("2.0", "expand"); got != "2.0/expand.xml" {
		t.Fatalf("Path() = %q, want 2.0/expand.xml", got)
	}
}
