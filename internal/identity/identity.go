// Package identity хранит гостевого участника чата: id и отображаемое имя, созданные один раз на установку.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/lofichat/internal/localstore"
	"github.com/lofichat/internal/logger"
	"github.com/lofichat/internal/model"
)

// StorageKey — ключ участника в локальном хранилище.
const StorageKey = "lofi_chat_user"

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

var adjectives = []string{
	"Sleepy", "Cozy", "Dreamy", "Mellow", "Chill", "Quiet", "Rainy", "Misty",
	"Gentle", "Velvet", "Lazy", "Sunny", "Dusty", "Hazy", "Calm", "Starry",
}

var nouns = []string{
	"Cat", "Owl", "Fox", "Panda", "Koala", "Cloud", "Moon", "Tea",
	"Vinyl", "Lamp", "Fern", "Otter", "Raven", "Comet", "Maple", "Wave",
}

// GenerateID возвращает id вида user_<unix-ms>_<9 символов base36>.
func GenerateID() string {
	var sb strings.Builder
	sb.WriteString("user_")
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	sb.WriteByte('_')
	for i := 0; i < 9; i++ {
		sb.WriteByte(base36[rand.Intn(len(base36))])
	}
	return sb.String()
}

// GenerateName возвращает имя вида <Adjective><Noun><1..999>.
func GenerateName() string {
	return fmt.Sprintf("%s%s%d",
		adjectives[rand.Intn(len(adjectives))],
		nouns[rand.Intn(len(nouns))],
		rand.Intn(999)+1,
	)
}

// New создаёт нового участника.
func New() model.Participant {
	return model.Participant{ID: GenerateID(), Name: GenerateName()}
}

// Load читает участника из хранилища; если его нет, создаёт и сохраняет.
// Любая ошибка хранилища не фатальна: возвращается участник только в памяти.
func Load(ctx context.Context, store localstore.Store) model.Participant {
	if store == nil {
		return New()
	}
	raw, err := store.Get(ctx, StorageKey)
	if errors.Is(err, localstore.ErrNotFound) {
		p := New()
		if err := Save(ctx, store, p); err != nil {
			logger.Errorf("identity: %v (участник только в памяти)", err)
		}
		return p
	}
	if err != nil {
		logger.Errorf("identity: read: %v (участник только в памяти)", err)
		return New()
	}
	var p model.Participant
	if err := json.Unmarshal([]byte(raw), &p); err != nil || p.ID == "" || p.Name == "" {
		logger.Errorf("identity: повреждённая запись %s (участник только в памяти)", StorageKey)
		return New()
	}
	return p
}

// Save записывает участника в хранилище.
func Save(ctx context.Context, store localstore.Store, p model.Participant) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("identity.Save: %w", err)
	}
	if err := store.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("identity.Save: %w", err)
	}
	return nil
}

// Regenerate выдаёт новое имя, сохраняя id, и записывает результат.
func Regenerate(ctx context.Context, store localstore.Store, p model.Participant) (model.Participant, error) {
	next := model.Participant{ID: p.ID, Name: GenerateName()}
	if store == nil {
		return next, nil
	}
	return next, Save(ctx, store, next)
}
