package repository_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/octavia/pkg/internal/model"
	"github.com/yeisme/octavia/pkg/internal/repository"
)

func newRepo(t *testing.T) *repository.TrackRepository {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())

	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatal(err)
	}

	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := repository.NewTrackRepository(db)
	if err := repo.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return repo
}

func newTrack(title string, uploaded time.Time) *model.Track {
	path := "/tmp/" + title + ".mp3"

	return &model.Track{
		Title:        title,
		Artist:       "Band",
		Album:        "LP",
		Artwork:      "/img/missing.png",
		Path:         &path,
		DateUploaded: uploaded,
		DeleteKey:    "abcdefgh",
	}
}

func TestCreateGet(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if tr.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	got, err := repo.Get(ctx, tr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if got.Title != "Song" || got.DeleteKey != "abcdefgh" || got.Plays != 0 || !got.HasFile() {
		t.Errorf("got %+v", got)
	}

	if _, err := repo.Get(ctx, tr.ID+100); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get missing err = %v, want ErrNotFound", err)
	}
}

// TestListActive 测试列表只包含保留期内未删除的记录，且按上传时间倒序.
func TestListActive(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()

	old := newTrack("old", now.Add(-31*24*time.Hour))
	a := newTrack("a", now.Add(-2*time.Hour))
	b := newTrack("b", now.Add(-1*time.Hour))
	gone := newTrack("gone", now)

	for _, tr := range []*model.Track{old, a, b, gone} {
		if err := repo.Create(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := repo.Delete(ctx, gone.ID); err != nil {
		t.Fatal(err)
	}

	list, err := repo.ListActive(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("ListActive = %+v", list)
	}

	// 过期但未删除的记录仍可直接读取
	if _, err := repo.Get(ctx, old.ID); err != nil {
		t.Errorf("Get expired: %v", err)
	}
}

// TestDeleteSoft 测试软删除后读取返回 ErrNotFound，且路径被清空.
func TestDeleteSoft(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	before, err := repo.Delete(ctx, tr.ID)
	if err != nil {
		t.Fatal(err)
	}

	if !before.HasFile() {
		t.Error("Delete should return the record with its path")
	}

	if _, err := repo.Get(ctx, tr.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}

	if _, err := repo.Delete(ctx, tr.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("second Delete err = %v", err)
	}

	n, err := repo.Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

// TestUpdateKeepsPlays 测试 Update 不会覆盖并发的播放自增.
func TestUpdateKeepsPlays(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Update(ctx, tr.ID, func(t *model.Track) error {
		// 模拟 fn 执行期间发生的播放
		t.Plays = 999
		t.Path = nil

		link := "https://example.com/buy"
		t.Buylink = &link

		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if got.HasFile() || got.Buylink == nil {
		t.Errorf("Update result = %+v", got)
	}

	stored, err := repo.Get(ctx, tr.ID)
	if err != nil {
		t.Fatal(err)
	}

	if stored.Plays != 0 || stored.HasFile() || stored.Buylink == nil {
		t.Errorf("stored = %+v", stored)
	}
}

func TestUpdateRollback(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")

	_, err := repo.Update(ctx, tr.ID, func(t *model.Track) error {
		t.Title = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	stored, _ := repo.Get(ctx, tr.ID)
	if stored.Title != "Song" {
		t.Errorf("title = %q, update should have rolled back", stored.Title)
	}

	if _, err := repo.Update(ctx, tr.ID+1, func(*model.Track) error { return nil }); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Update missing err = %v", err)
	}
}

// TestIncrementPlaysConcurrent 测试并发自增不丢失.
func TestIncrementPlaysConcurrent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	const n = 20

	var wg sync.WaitGroup

	for range n {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if _, err := repo.IncrementPlays(ctx, tr.ID); err != nil {
				t.Errorf("IncrementPlays: %v", err)
			}
		}()
	}

	wg.Wait()

	stored, _ := repo.Get(ctx, tr.ID)
	if stored.Plays != n {
		t.Errorf("plays = %d, want %d", stored.Plays, n)
	}

	if _, err := repo.IncrementPlays(ctx, tr.ID+1); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("IncrementPlays missing err = %v", err)
	}
}

// TestListExpired 测试回收候选：已过期，且仍有文件或缺少购买链接.
func TestListExpired(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	now := time.Now()
	aged := now.Add(-31 * 24 * time.Hour)
	link := "https://example.com/buy"

	withFile := newTrack("with-file", aged)

	done := newTrack("done", aged)
	done.Path = nil
	done.Buylink = &link

	noLink := newTrack("no-link", aged)
	noLink.Path = nil

	fresh := newTrack("fresh", now)

	for _, tr := range []*model.Track{withFile, done, noLink, fresh} {
		if err := repo.Create(ctx, tr); err != nil {
			t.Fatal(err)
		}
	}

	list, err := repo.ListExpired(ctx, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	if len(list) != 2 || list[0].ID != withFile.ID || list[1].ID != noLink.ID {
		t.Fatalf("ListExpired = %+v", list)
	}
}

func TestHardDelete(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()

	tr := newTrack("Song", time.Now())
	if err := repo.Create(ctx, tr); err != nil {
		t.Fatal(err)
	}

	if err := repo.HardDelete(ctx, tr.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := repo.Get(ctx, tr.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get after hard delete err = %v", err)
	}
}
