package jarurl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	const context = "jar:file:/srv/app.jar!/com/example/App.class"

	tests := []struct {
		name    string
		context string
		spec    string
		want    string
	}{
		{name: "absolute file", spec: "jar:file:/other.jar!/x.txt", want: "jar:file:/other.jar!/x.txt"},
		{name: "absolute nested", spec: "jar:nested:/srv/app.jar/!lib/a.jar!/a.txt", want: "jar:nested:/srv/app.jar/!lib/a.jar!/a.txt"},
		{name: "absolute keeps fragment", spec: "JAR:file:/a.jar!/x#runtime", want: "jar:file:/a.jar!/x#runtime"},
		{name: "sibling", context: context, spec: "Other.class", want: "jar:file:/srv/app.jar!/com/example/Other.class"},
		{name: "parent", context: context, spec: "../util/Util.class", want: "jar:file:/srv/app.jar!/com/util/Util.class"},
		{name: "dot", context: context, spec: "./Other.class", want: "jar:file:/srv/app.jar!/com/example/Other.class"},
		{name: "root relative", context: context, spec: "/META-INF/MANIFEST.MF", want: "jar:file:/srv/app.jar!/META-INF/MANIFEST.MF"},
		{name: "fragment only", context: context, spec: "#section", want: "jar:file:/srv/app.jar!/com/example/App.class#section"},
		{name: "empty spec", context: context, spec: "", want: "jar:file:/srv/app.jar!/com/example/"},
		{name: "context fragment dropped", context: context + "#old", spec: "Other.class", want: "jar:file:/srv/app.jar!/com/example/Other.class"},
		{
			name:    "nested context",
			context: "jar:nested:/srv/app.jar/!BOOT-INF/classes/!/com/App.class",
			spec:    "/application.properties",
			want:    "jar:nested:/srv/app.jar/!BOOT-INF/classes/!/application.properties",
		},
		{name: "container path untouched", context: "jar:file:/srv/../app.jar!/a/b", spec: "c", want: "jar:file:/srv/../app.jar!/a/c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Resolve(tt.context, tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		context string
		spec    string
		target  error
	}{
		{name: "nested jar url", spec: "jar:jar:file:/a.jar!/b.jar!/c", target: ErrUnsupported},
		{name: "no separator", spec: "jar:file:/a.jar", target: ErrInvalidArgument},
		{name: "inner without scheme", spec: "jar:/a.jar!/x", target: ErrInvalidArgument},
		{name: "malformed nested inner", spec: "jar:nested:%zz!/x", target: ErrInvalidArgument},
		{name: "not a jar context", context: "file:/a.jar", spec: "x", target: ErrInvalidArgument},
		{name: "root relative without separator", context: "jar:file:/a.jar", spec: "/x", target: ErrInvalidArgument},
		{name: "relative without slash", context: "jar:file:a.jar", spec: "x", target: ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Resolve(tt.context, tt.spec)
			require.ErrorIs(t, err, tt.target)
		})
	}
}
