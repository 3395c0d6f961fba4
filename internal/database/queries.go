package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const (
	userColumns = "u.id, u.username, u.display_name, u.avatar, u.email, u.status, " +
		"u.is_online, u.is_blocked, u.last_seen, u.created_at, u.updated_at"

	roomColumns = "r.id, r.external_id, r.name, r.description, r.type, r.is_private, " +
		"r.created_by, r.created_at, r.updated_at"

	messageColumns = "m.id, m.room_id, m.sender_id, m.content, m.type, m.reply_to_id, " +
		"m.is_edited, m.edited_at, m.is_deleted, m.deleted_at, m.created_at"

	fileColumns = "f.id, f.message_id, f.user_id, f.filename, f.original_name, f.mime_type, " +
		"f.size, f.url, f.thumbnail_url, f.created_at"

	upsertMemberQuery = "INSERT INTO room_members (room_id, user_id, role, is_active, joined_at) " +
		"VALUES ($1, $2, $3, TRUE, $4) " +
		"ON CONFLICT (room_id, user_id) DO UPDATE SET is_active = TRUE, left_at = NULL, " +
		"role = excluded.role, joined_at = excluded.joined_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func userDest(u *User) []any {
	return []any{
		&u.Id,
		&u.Username,
		&u.DisplayName,
		&u.Avatar,
		&u.EmailAddress,
		&u.Status,
		&u.IsOnline,
		&u.IsBlocked,
		&u.LastSeen,
		&u.CreatedAt,
		&u.UpdatedAt,
	}
}

func scanRoom(row scanner) (Room, error) {
	var r Room
	err := row.Scan(
		&r.Id,
		&r.ExternalId,
		&r.Name,
		&r.Description,
		&r.Type,
		&r.IsPrivate,
		&r.CreatedBy,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	return r, err
}

func scanMessage(row scanner) (Message, error) {
	var m Message
	dest := []any{
		&m.Id,
		&m.RoomId,
		&m.SenderId,
		&m.Content,
		&m.Type,
		&m.ReplyToId,
		&m.IsEdited,
		&m.EditedAt,
		&m.IsDeleted,
		&m.DeletedAt,
		&m.CreatedAt,
	}
	err := row.Scan(append(dest, userDest(&m.Sender)...)...)
	return m, err
}

func scanFile(row scanner) (File, error) {
	var f File
	err := row.Scan(
		&f.Id,
		&f.MessageId,
		&f.UserId,
		&f.Filename,
		&f.OriginalName,
		&f.MimeType,
		&f.Size,
		&f.Url,
		&f.ThumbnailUrl,
		&f.CreatedAt,
	)
	return f, err
}

func (db *SqlGoChatRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (User, error) {
	now := time.Now().UTC()

	var id int64
	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO users (username, display_name, email, password_hash, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) RETURNING id",
		params.Username,
		params.DisplayName,
		params.EmailAddress,
		params.PasswordHash,
		now,
	).Scan(&id)
	if err != nil {
		return User{}, mapError(err)
	}

	return db.GetAccountById(ctx, id)
}

func (db *SqlGoChatRepository) GetAccountById(ctx context.Context, userId int64) (User, error) {
	var u User
	err := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users u WHERE u.id = $1",
		userId,
	).Scan(userDest(&u)...)

	return u, mapError(err)
}

func (db *SqlGoChatRepository) GetAccountByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+", u.password_hash FROM users u WHERE u.email = $1",
		email,
	).Scan(append(userDest(&u), &u.PasswordHash)...)

	return u, mapError(err)
}

func (db *SqlGoChatRepository) SearchAccounts(ctx context.Context, query string, limit int) ([]User, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users u "+
			"WHERE NOT u.is_blocked AND (LOWER(u.username) LIKE '%' || LOWER($1) || '%' "+
			"OR LOWER(u.display_name) LIKE '%' || LOWER($1) || '%') "+
			"ORDER BY u.username LIMIT $2",
		query,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search accounts: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(userDest(&u)...); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}

	return users, rows.Err()
}

func (db *SqlGoChatRepository) UpdatePresence(ctx context.Context, params UpdatePresenceParams) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE users SET status = $2, is_online = $3, last_seen = $4, updated_at = $4 WHERE id = $1",
		params.UserId,
		params.Status,
		params.IsOnline,
		params.LastSeen.UTC(),
	)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (db *SqlGoChatRepository) CreateRoom(ctx context.Context, params CreateRoomParams) (Room, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Room{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	var roomId int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO rooms (external_id, name, description, type, is_private, created_by, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id",
		params.ExternalId,
		params.Name,
		params.Description,
		params.Type,
		params.IsPrivate,
		params.OwnerId,
		now,
	).Scan(&roomId)
	if err != nil {
		err = mapError(err)
		return Room{}, err
	}

	if _, err = tx.ExecContext(ctx, upsertMemberQuery, roomId, params.OwnerId, "owner", now); err != nil {
		return Room{}, err
	}

	for _, memberId := range params.MemberIds {
		if memberId == params.OwnerId {
			continue
		}
		if _, err = tx.ExecContext(ctx, upsertMemberQuery, roomId, memberId, "member", now); err != nil {
			return Room{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return Room{}, err
	}

	return db.GetRoomById(ctx, roomId)
}

func (db *SqlGoChatRepository) GetRoomById(ctx context.Context, roomId int64) (Room, error) {
	room, err := scanRoom(db.conn.QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r WHERE r.id = $1",
		roomId,
	))

	return room, mapError(err)
}

func (db *SqlGoChatRepository) ListRoomsForUser(ctx context.Context, userId int64) ([]Room, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms r "+
			"JOIN room_members rm ON rm.room_id = r.id "+
			"WHERE rm.user_id = $1 AND rm.is_active ORDER BY r.updated_at DESC, r.id DESC",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, room)
	}

	return rooms, rows.Err()
}

func (db *SqlGoChatRepository) TouchRoom(ctx context.Context, roomId int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, "UPDATE rooms SET updated_at = $2 WHERE id = $1", roomId, at.UTC())
	return err
}

func (db *SqlGoChatRepository) GetMembership(ctx context.Context, roomId, userId int64) (Member, error) {
	var m Member
	err := db.conn.QueryRowContext(ctx,
		"SELECT rm.id, rm.room_id, rm.user_id, rm.role, rm.is_active, rm.joined_at, rm.left_at "+
			"FROM room_members rm WHERE rm.room_id = $1 AND rm.user_id = $2",
		roomId,
		userId,
	).Scan(&m.Id, &m.RoomId, &m.UserId, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt)

	return m, mapError(err)
}

func (db *SqlGoChatRepository) ListMembers(ctx context.Context, roomId int64) ([]Member, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT rm.id, rm.room_id, rm.user_id, rm.role, rm.is_active, rm.joined_at, rm.left_at, "+userColumns+
			" FROM room_members rm JOIN users u ON u.id = rm.user_id "+
			"WHERE rm.room_id = $1 AND rm.is_active ORDER BY rm.joined_at, rm.id",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]Member, 0)
	for rows.Next() {
		var m Member
		dest := []any{&m.Id, &m.RoomId, &m.UserId, &m.Role, &m.IsActive, &m.JoinedAt, &m.LeftAt}
		if err := rows.Scan(append(dest, userDest(&m.User)...)...); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

func (db *SqlGoChatRepository) ListActiveRoomIds(ctx context.Context, userId int64) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT room_id FROM room_members WHERE user_id = $1 AND is_active ORDER BY room_id",
		userId,
	)
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

func (db *SqlGoChatRepository) UpsertMembership(ctx context.Context, roomId, userId int64, role string) (Member, error) {
	_, err := db.conn.ExecContext(ctx, upsertMemberQuery, roomId, userId, role, time.Now().UTC())
	if err != nil {
		return Member{}, mapError(err)
	}

	return db.GetMembership(ctx, roomId, userId)
}

func (db *SqlGoChatRepository) DeactivateMembership(ctx context.Context, roomId, userId int64, leftAt time.Time) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE room_members SET is_active = FALSE, left_at = $3 WHERE room_id = $1 AND user_id = $2 AND is_active",
		roomId,
		userId,
		leftAt.UTC(),
	)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (db *SqlGoChatRepository) UpdateMemberRole(ctx context.Context, roomId, userId int64, role string) error {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE room_members SET role = $3 WHERE room_id = $1 AND user_id = $2 AND is_active",
		roomId,
		userId,
		role,
	)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (db *SqlGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (Message, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	createdAt = createdAt.UTC()

	var msgId int64
	err = tx.QueryRowContext(ctx,
		"INSERT INTO messages (room_id, sender_id, content, type, reply_to_id, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING id",
		params.RoomId,
		params.SenderId,
		params.Content,
		params.Type,
		params.ReplyToId,
		createdAt,
	).Scan(&msgId)
	if err != nil {
		return Message{}, err
	}

	for _, f := range params.Files {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO files (message_id, user_id, filename, original_name, mime_type, size, url, thumbnail_url, created_at) "+
				"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
			msgId,
			params.SenderId,
			f.Filename,
			f.OriginalName,
			f.MimeType,
			f.Size,
			f.Url,
			f.ThumbnailUrl,
			createdAt,
		)
		if err != nil {
			return Message{}, fmt.Errorf("insert file: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return Message{}, err
	}

	return db.GetMessage(ctx, msgId)
}

func (db *SqlGoChatRepository) GetMessage(ctx context.Context, messageId int64) (Message, error) {
	msg, err := scanMessage(db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+", "+userColumns+
			" FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id = $1",
		messageId,
	))
	if err != nil {
		return Message{}, mapError(err)
	}

	msgs := []Message{msg}
	if err := db.attachFiles(ctx, msgs); err != nil {
		return Message{}, err
	}

	return msgs[0], nil
}

func (db *SqlGoChatRepository) ListMessages(ctx context.Context, roomId, before int64, limit int) ([]Message, error) {
	if before <= 0 {
		before = 1<<63 - 1
	}

	return db.queryMessages(ctx,
		"SELECT "+messageColumns+", "+userColumns+
			" FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.room_id = $1 AND m.id < $2 AND NOT m.is_deleted "+
			"ORDER BY m.id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
}

func (db *SqlGoChatRepository) SearchMessages(ctx context.Context, roomId int64, query string, limit int) ([]Message, error) {
	return db.queryMessages(ctx,
		"SELECT "+messageColumns+", "+userColumns+
			" FROM messages m JOIN users u ON u.id = m.sender_id "+
			"WHERE m.room_id = $1 AND NOT m.is_deleted "+
			"AND LOWER(m.content) LIKE '%' || LOWER($2) || '%' "+
			"ORDER BY m.id DESC LIMIT $3",
		roomId,
		query,
		limit,
	)
}

func (db *SqlGoChatRepository) queryMessages(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	msgs := make([]Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// release the connection before loading attachments
	rows.Close()

	if err := db.attachFiles(ctx, msgs); err != nil {
		return nil, err
	}

	return msgs, nil
}

// attachFiles loads the files for every message in msgs with one query.
func (db *SqlGoChatRepository) attachFiles(ctx context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	index := make(map[int64]int, len(msgs))
	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	for i, m := range msgs {
		index[m.Id] = i
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = m.Id
		msgs[i].Files = make([]File, 0)
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files f WHERE f.message_id IN ("+
			strings.Join(placeholders, ", ")+") ORDER BY f.id",
		args...,
	)
	if err != nil {
		return fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return fmt.Errorf("scan file: %w", err)
		}
		if f.MessageId == nil {
			continue
		}
		if i, ok := index[*f.MessageId]; ok {
			msgs[i].Files = append(msgs[i].Files, f)
		}
	}

	return rows.Err()
}

func (db *SqlGoChatRepository) UpdateMessageContent(ctx context.Context, messageId int64, content string, editedAt time.Time) (Message, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET content = $2, is_edited = TRUE, edited_at = $3 WHERE id = $1 AND NOT is_deleted",
		messageId,
		content,
		editedAt.UTC(),
	)
	if err != nil {
		return Message{}, err
	}
	if err := requireAffected(res); err != nil {
		return Message{}, err
	}

	return db.GetMessage(ctx, messageId)
}

// SoftDeleteMessage marks the message deleted and clears its content. A
// message that is already deleted keeps its original deleted_at.
func (db *SqlGoChatRepository) SoftDeleteMessage(ctx context.Context, messageId int64, deletedAt time.Time) (Message, error) {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET is_deleted = TRUE, deleted_at = $2, content = NULL WHERE id = $1 AND NOT is_deleted",
		messageId,
		deletedAt.UTC(),
	)
	if err != nil {
		return Message{}, err
	}

	return db.GetMessage(ctx, messageId)
}

func (db *SqlGoChatRepository) GetReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error) {
	var r Reaction
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, message_id, user_id, emoji, created_at FROM reactions "+
			"WHERE message_id = $1 AND user_id = $2 AND emoji = $3",
		messageId,
		userId,
		emoji,
	).Scan(&r.Id, &r.MessageId, &r.UserId, &r.Emoji, &r.CreatedAt)

	return r, mapError(err)
}

func (db *SqlGoChatRepository) CreateReaction(ctx context.Context, messageId, userId int64, emoji string) (Reaction, error) {
	r := Reaction{
		MessageId: messageId,
		UserId:    userId,
		Emoji:     emoji,
		CreatedAt: time.Now().UTC(),
	}

	err := db.conn.QueryRowContext(ctx,
		"INSERT INTO reactions (message_id, user_id, emoji, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		messageId,
		userId,
		emoji,
		r.CreatedAt,
	).Scan(&r.Id)

	return r, mapError(err)
}

func (db *SqlGoChatRepository) DeleteReaction(ctx context.Context, reactionId int64) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM reactions WHERE id = $1", reactionId)
	return err
}

func (db *SqlGoChatRepository) ListReactions(ctx context.Context, messageId int64) ([]Reaction, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT re.id, re.message_id, re.user_id, re.emoji, re.created_at, "+userColumns+
			" FROM reactions re JOIN users u ON u.id = re.user_id "+
			"WHERE re.message_id = $1 ORDER BY re.id",
		messageId,
	)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	reactions := make([]Reaction, 0)
	for rows.Next() {
		var r Reaction
		dest := []any{&r.Id, &r.MessageId, &r.UserId, &r.Emoji, &r.CreatedAt}
		if err := rows.Scan(append(dest, userDest(&r.User)...)...); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		reactions = append(reactions, r)
	}

	return reactions, rows.Err()
}

// UpsertReadReceipt records that userId read messageId. An existing receipt
// only moves forward in time.
func (db *SqlGoChatRepository) UpsertReadReceipt(ctx context.Context, messageId, userId int64, readAt time.Time) (ReadReceipt, error) {
	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO read_receipts (message_id, user_id, read_at) VALUES ($1, $2, $3) "+
			"ON CONFLICT (message_id, user_id) DO UPDATE SET read_at = "+
			"CASE WHEN excluded.read_at > read_receipts.read_at THEN excluded.read_at ELSE read_receipts.read_at END",
		messageId,
		userId,
		readAt.UTC(),
	)
	if err != nil {
		return ReadReceipt{}, mapError(err)
	}

	rr := ReadReceipt{MessageId: messageId, UserId: userId}
	err = db.conn.QueryRowContext(ctx,
		"SELECT read_at FROM read_receipts WHERE message_id = $1 AND user_id = $2",
		messageId,
		userId,
	).Scan(&rr.ReadAt)

	return rr, mapError(err)
}

func (db *SqlGoChatRepository) PinMessage(ctx context.Context, roomId, messageId, pinnedBy int64) (PinnedMessage, error) {
	pin := PinnedMessage{
		RoomId:    roomId,
		MessageId: messageId,
		PinnedBy:  pinnedBy,
		PinnedAt:  time.Now().UTC(),
	}

	_, err := db.conn.ExecContext(ctx,
		"INSERT INTO pinned_messages (room_id, message_id, pinned_by, pinned_at) VALUES ($1, $2, $3, $4)",
		roomId,
		messageId,
		pinnedBy,
		pin.PinnedAt,
	)
	if err != nil {
		return PinnedMessage{}, mapError(err)
	}

	pin.Message, err = db.GetMessage(ctx, messageId)
	return pin, err
}

func (db *SqlGoChatRepository) UnpinMessage(ctx context.Context, roomId, messageId int64) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM pinned_messages WHERE room_id = $1 AND message_id = $2",
		roomId,
		messageId,
	)
	if err != nil {
		return err
	}

	return requireAffected(res)
}

func (db *SqlGoChatRepository) ListPinnedMessages(ctx context.Context, roomId int64) ([]PinnedMessage, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT p.room_id, p.message_id, p.pinned_by, p.pinned_at FROM pinned_messages p "+
			"WHERE p.room_id = $1 ORDER BY p.pinned_at DESC, p.id DESC",
		roomId,
	)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}

	pins := make([]PinnedMessage, 0)
	for rows.Next() {
		var p PinnedMessage
		if err := rows.Scan(&p.RoomId, &p.MessageId, &p.PinnedBy, &p.PinnedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pin: %w", err)
		}
		pins = append(pins, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range pins {
		msg, err := db.GetMessage(ctx, pins[i].MessageId)
		if err != nil {
			return nil, fmt.Errorf("load pinned message %d: %w", pins[i].MessageId, err)
		}
		pins[i].Message = msg
	}

	return pins, nil
}

func (db *SqlGoChatRepository) ListFilesForRoom(ctx context.Context, roomId, before int64, limit int) ([]File, error) {
	if before <= 0 {
		before = 1<<63 - 1
	}

	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+fileColumns+" FROM files f JOIN messages m ON m.id = f.message_id "+
			"WHERE m.room_id = $1 AND NOT m.is_deleted AND f.id < $2 ORDER BY f.id DESC LIMIT $3",
		roomId,
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]File, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}

	return files, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
