package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	kubefake "k8s.io/client-go/kubernetes/fake"
)

func TestCheckSelectorWellFormedAcceptsEmpty(t *testing.T) {
	assert.NoError(t, checkSelectorWellFormed(""))
}

func TestCheckSelectorWellFormedAcceptsValidSelector(t *testing.T) {
	assert.NoError(t, checkSelectorWellFormed("app=platform,tier=edge"))
}

func TestCheckSelectorWellFormedRejectsMalformedSelector(t *testing.T) {
	err := checkSelectorWellFormed("!!!not-well-formed!!!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not well-formed")
}

// FakeDiscovery's ServerVersion() always succeeds against a bare fake
// clientset, so this check passes without needing a real cluster.
func TestCheckAPIServerResponsiveAgainstFakeDiscovery(t *testing.T) {
	disc := kubefake.NewSimpleClientset().Discovery()
	assert.NoError(t, checkAPIServerResponsive(disc))
}
