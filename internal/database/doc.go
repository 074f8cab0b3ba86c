// Package database owns the relational store: gorm models for the account
// tables and admin invite requests, the dialector selection for MySQL,
// PostgreSQL and SQLite, and the repositories the engine flows run on.
package database
