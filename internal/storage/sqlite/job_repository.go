package sqlite

import "database/sql"

// JobRepository implements storage.JobRepository.
type JobRepository struct {
	*JobReadRepository
	*JobWriteRepository
}

func NewJobRepository(dbConn *sql.DB) *JobRepository {
	return &JobRepository{
		JobReadRepository:  NewJobReadRepository(dbConn),
		JobWriteRepository: NewJobWriteRepository(dbConn),
	}
}
