package postgres

const upsertPart = `
INSERT INTO parts (
	part_key,
	brand,
	model_category,
	model,
	name,
	type,
	in_stock,
	image_url,
	location,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (part_key) DO UPDATE SET
	in_stock = EXCLUDED.in_stock,
	image_url = EXCLUDED.image_url,
	location = EXCLUDED.location,
	scraped_at = EXCLUDED.scraped_at`

var schema = []string{
	`CREATE TABLE IF NOT EXISTS brands (
	name text NOT NULL,
	url  text NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS categories (
	brand text NOT NULL,
	name  text NOT NULL,
	url   text NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS models (
	brand          text NOT NULL,
	model_category text NOT NULL,
	name           text NOT NULL,
	url            text NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS parts (
	part_key       text PRIMARY KEY,
	brand          text NOT NULL,
	model_category text NOT NULL,
	model          text NOT NULL,
	name           text NOT NULL,
	type           text NOT NULL,
	in_stock       boolean NOT NULL,
	image_url      text NOT NULL DEFAULT '',
	location       text NOT NULL DEFAULT '',
	scraped_at     timestamptz NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS changesets (
	run_id       text PRIMARY KEY,
	generated_at timestamptz NOT NULL,
	body         jsonb NOT NULL
)`,
}
