package uploads

import "github.com/dmitrijs2005/civilforms/internal/server/models"

// BuildManifest lists the files that finished uploading. Files in any
// other state are left out.
func BuildManifest(files []UploadedFile) []models.Attachment {
	var out []models.Attachment
	for _, f := range files {
		if f.Status != StatusUploaded || f.Path == "" || f.URL == "" {
			continue
		}
		out = append(out, models.Attachment{
			Filename: f.Filename,
			URL:      f.URL,
			Size:     f.Size,
			Path:     f.Path,
		})
	}
	return out
}

// Manifest is BuildManifest over the current list.
func (o *Orchestrator) Manifest() []models.Attachment {
	return BuildManifest(o.Files())
}
