package processing

import (
	"context"

	"motion-transfer-backend/internal/models"
)

// Output is what a finished motion-transfer job produces.
type Output struct {
	IdentityFrameURL  string
	GeneratedVideoURL string
}

// Generator runs the motion-transfer job for a project.
// An error moves the project to failed.
type Generator interface {
	Generate(ctx context.Context, project models.Project) (Output, error)
}

// PlaceholderGenerator stands in for real motion transfer: it reports a fixed identity frame
// and loops the original video back as the generated one.
type PlaceholderGenerator struct {
	IdentityFrameURL string
}

func (g PlaceholderGenerator) Generate(_ context.Context, project models.Project) (Output, error) {
	return Output{
		IdentityFrameURL:  g.IdentityFrameURL,
		GeneratedVideoURL: project.OriginalVideoURL,
	}, nil
}
