package observability_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-webgrader/internal/observability"
)

func TestWriteTextfileIncludesGraderMetrics(t *testing.T) {
	before := testutil.ToFloat64(observability.Submissions().WithLabelValues("graded"))
	observability.Submissions().WithLabelValues("graded").Inc()
	observability.SubmissionScore().Observe(7)
	require.Equal(t, before+1, testutil.ToFloat64(observability.Submissions().WithLabelValues("graded")))

	path := filepath.Join(t.TempDir(), "webgrader.prom")
	require.NoError(t, observability.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "webgrader_submissions_total")
	require.Contains(t, string(content), "webgrader_submission_score_bucket")
}
