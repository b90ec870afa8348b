package database

const projectColumns = `id, original_video_url, identity_frame_url, generated_video_url, status, created_at`

const (
	getProjectQuery = `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1
	`

	lockProjectQuery = `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE id = $1
		FOR UPDATE
	`

	createProjectQuery = `
		INSERT INTO projects (original_video_url, status)
		VALUES ($1, 'pending')
		RETURNING ` + projectColumns

	updateProjectQuery = `
		UPDATE projects
		SET status = $2, identity_frame_url = $3, generated_video_url = $4
		WHERE id = $1
		RETURNING ` + projectColumns

	listProjectsByStatusQuery = `
		SELECT ` + projectColumns + `
		FROM projects
		WHERE status = $1
		ORDER BY id ASC
	`
)
