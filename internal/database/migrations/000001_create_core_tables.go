package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func init() {
	migrationsList = append(migrationsList, createCoreTablesMigration())
}

// createCoreTablesMigration creates the users, drops, leaderboard,
// progression and achievement tables
func createCoreTablesMigration() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_core_tables",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE EXTENSION IF NOT EXISTS "uuid-ossp";

				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					username VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255),
					avatar_url TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS drops (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					sender_id UUID NOT NULL REFERENCES users(id),
					receiver_id UUID REFERENCES users(id),
					amount BIGINT NOT NULL CHECK (amount > 0),
					message TEXT,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					matched_drop_id UUID,
					matched_at TIMESTAMP WITH TIME ZONE,
					reference VARCHAR(100) NOT NULL UNIQUE,
					metadata JSONB,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					deleted_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX idx_drops_sender_id ON drops(sender_id);
				CREATE INDEX idx_drops_receiver_id ON drops(receiver_id);
				CREATE INDEX idx_drops_status ON drops(status);
				CREATE INDEX idx_drops_pending_amount ON drops(amount, created_at)
					WHERE status = 'pending' AND matched_drop_id IS NULL;
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS leaderboard_entries (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES users(id),
					period_type VARCHAR(20) NOT NULL,
					category VARCHAR(30) NOT NULL,
					score BIGINT NOT NULL,
					rank INTEGER,
					period_start TIMESTAMP WITH TIME ZONE NOT NULL,
					period_end TIMESTAMP WITH TIME ZONE NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					CONSTRAINT idx_leaderboard_key UNIQUE (user_id, period_type, category, period_start)
				);

				CREATE INDEX idx_leaderboard_scores
					ON leaderboard_entries(period_type, category, period_start, score DESC);
			`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS progression_states (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL UNIQUE REFERENCES users(id),
					total_xp BIGINT NOT NULL DEFAULT 0,
					level INTEGER NOT NULL DEFAULT 1,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS xp_award_logs (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES users(id),
					delta BIGINT NOT NULL CHECK (delta > 0),
					reason VARCHAR(100) NOT NULL,
					level_before INTEGER NOT NULL,
					level_after INTEGER NOT NULL,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX idx_xp_award_logs_user_id ON xp_award_logs(user_id);

				CREATE TABLE IF NOT EXISTS achievement_unlocks (
					id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
					user_id UUID NOT NULL REFERENCES users(id),
					achievement_id VARCHAR(100) NOT NULL,
					unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,
					CONSTRAINT idx_achievement_unlock UNIQUE (user_id, achievement_id)
				);
			`).Error; err != nil {
				return err
			}

			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Exec(`
				DROP TABLE IF EXISTS achievement_unlocks;
				DROP TABLE IF EXISTS xp_award_logs;
				DROP TABLE IF EXISTS progression_states;
				DROP TABLE IF EXISTS leaderboard_entries;
				DROP TABLE IF EXISTS drops;
				DROP TABLE IF EXISTS users;
			`).Error
		},
	}
}
