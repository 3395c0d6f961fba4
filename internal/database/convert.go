package database

import "github.com/npezzotti/go-chatroom-realtime/internal/types"

func (u User) ToUser() types.User {
	return types.User{
		Id:          u.Id,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		Avatar:      u.Avatar,
		Status:      types.Status(u.Status),
		IsOnline:    u.IsOnline,
		LastSeen:    u.LastSeen,
		CreatedAt:   u.CreatedAt,
	}
}

func (u User) ToAccount() types.Account {
	return types.Account{
		User:         u.ToUser(),
		EmailAddress: u.EmailAddress,
	}
}

func (r Room) ToRoom() types.Room {
	return types.Room{
		Id:          r.Id,
		ExternalId:  r.ExternalId,
		Name:        r.Name,
		Description: r.Description,
		Type:        r.Type,
		IsPrivate:   r.IsPrivate,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (m Member) ToMember() types.Member {
	return types.Member{
		RoomId:   m.RoomId,
		User:     m.User.ToUser(),
		Role:     types.Role(m.Role),
		IsActive: m.IsActive,
		JoinedAt: m.JoinedAt,
		LeftAt:   m.LeftAt,
	}
}

func (f File) ToFile() types.File {
	return types.File{
		Id:           f.Id,
		MessageId:    f.MessageId,
		UserId:       f.UserId,
		Filename:     f.Filename,
		OriginalName: f.OriginalName,
		MimeType:     f.MimeType,
		Size:         f.Size,
		Url:          f.Url,
		ThumbnailUrl: f.ThumbnailUrl,
		CreatedAt:    f.CreatedAt,
	}
}

func (r Reaction) ToReaction() types.Reaction {
	return types.Reaction{
		Id:        r.Id,
		MessageId: r.MessageId,
		Emoji:     r.Emoji,
		User:      r.User.ToUser(),
		CreatedAt: r.CreatedAt,
	}
}

// ToMessage converts the row without reply context and with an empty
// reaction list.
func (m Message) ToMessage() types.Message {
	files := make([]types.File, 0, len(m.Files))
	for _, f := range m.Files {
		files = append(files, f.ToFile())
	}

	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Sender:    m.Sender.ToUser(),
		Content:   m.Content,
		Type:      types.MessageType(m.Type),
		Files:     files,
		Reactions: make([]types.Reaction, 0),
		IsEdited:  m.IsEdited,
		EditedAt:  m.EditedAt,
		IsDeleted: m.IsDeleted,
		DeletedAt: m.DeletedAt,
		CreatedAt: m.CreatedAt,
	}
}

func (m Message) ToReplyContext() *types.ReplyContext {
	return &types.ReplyContext{
		Id:        m.Id,
		Content:   m.Content,
		IsDeleted: m.IsDeleted,
		Sender:    m.Sender.ToUser(),
		CreatedAt: m.CreatedAt,
	}
}

func (rr ReadReceipt) ToReadReceipt() types.ReadReceipt {
	return types.ReadReceipt{
		MessageId: rr.MessageId,
		UserId:    rr.UserId,
		ReadAt:    rr.ReadAt,
	}
}
