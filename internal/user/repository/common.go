package repository

import (
	"errors"
	"strings"

	"codearena/internal/common/db"
)

const (
	userInfoKeyPrefix  = "user:info:"
	userEmailKeyPrefix = "user:email:"
	tokenDenyKeyPrefix = "token:deny:"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrEmailExists  = errors.New("email already exists")
)

// Schema creates the tables owned by the user module.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
		first_name VARCHAR(20) NOT NULL,
		last_name VARCHAR(20) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL,
		age INT NULL,
		role VARCHAR(16) NOT NULL DEFAULT 'user',
		password_hash VARCHAR(255) NOT NULL,
		profile_image VARCHAR(1024) NOT NULL DEFAULT '',
		bio VARCHAR(300) NOT NULL DEFAULT '',
		github VARCHAR(255) NOT NULL DEFAULT '',
		location VARCHAR(100) NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY users_email_uq (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS user_solved_problems (
		user_id BIGINT NOT NULL,
		problem_id BIGINT NOT NULL,
		solved_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (user_id, problem_id),
		KEY user_solved_problem_idx (problem_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

func mapDuplicate(err error) (error, bool) {
	key, ok := db.UniqueViolation(err)
	if !ok {
		return nil, false
	}
	if strings.Contains(strings.ToLower(key), "email") {
		return ErrEmailExists, true
	}
	return ErrDuplicate, true
}
