package storage

const schema = `
-- The 'snapshots' table stores one whole scheduler snapshot per deck.
CREATE TABLE IF NOT EXISTS snapshots (
    deck TEXT PRIMARY KEY,
    version INTEGER NOT NULL,
    updated_at DATETIME,
    body TEXT NOT NULL
);

-- The 'reviews' table is an append-only journal of every accepted rating.
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    deck TEXT NOT NULL,
    card_id INTEGER NOT NULL,
    rating TEXT NOT NULL,
    queue_index INTEGER NOT NULL,
    reviewed_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS reviews_deck_card ON reviews (deck, card_id);
`
