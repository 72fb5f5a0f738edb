package apiv1

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The served document must stay loadable and internally consistent; the
// swagger middleware renders it verbatim.
func TestOpenAPIDocumentIsValid(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)
	require.NoError(t, doc.Validate(context.Background()))

	assert.Equal(t, "FaceMojo API", doc.Info.Title)
}

func TestOpenAPIDocumentCoversRegisteredRoutes(t *testing.T) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile("../../../public/docs/v1/openapi.yml")
	require.NoError(t, err)

	expected := []string{
		"/ping",
		"/auth/register",
		"/auth/login",
		"/user/account",
		"/user/usage",
		"/animations",
		"/animations/{uuid}",
		"/animations/{uuid}/wait",
		"/subscription",
		"/subscription/confirm",
		"/admin/quota/reset",
		"/admin/reconcile",
	}
	for _, path := range expected {
		assert.NotNil(t, doc.Paths.Find(path), "missing path %s", path)
	}
}
