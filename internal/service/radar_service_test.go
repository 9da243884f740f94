package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"skill-radar/internal/common"
	"skill-radar/internal/domain"
)

// Mock implementations for testing
type MockScouter struct {
	mock.Mock
}

func (m *MockScouter) ScoutTopic(ctx context.Context, topic string, minStars, maxRepos int) ([]*domain.Repo, error) {
	args := m.Called(ctx, topic, minStars, maxRepos)
	return args.Get(0).([]*domain.Repo), args.Error(1)
}

type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) AnalyzeRepos(ctx context.Context, repos []*domain.Repo) ([]*domain.Repo, error) {
	args := m.Called(ctx, repos)
	return args.Get(0).([]*domain.Repo), args.Error(1)
}

func (m *MockAnalyzer) SetMaxGoroutines(n int) {
	m.Called(n)
}

type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) Render(dataset *domain.Dataset) string {
	args := m.Called(dataset)
	return args.String(0)
}

type MockAppraiser struct {
	mock.Mock
}

func (m *MockAppraiser) Appraise(ctx context.Context, repo *domain.Repo) (*domain.Repo, error) {
	args := m.Called(ctx, repo)
	return args.Get(0).(*domain.Repo), args.Error(1)
}

func (m *MockAppraiser) SemanticSearch(ctx context.Context, repos []*domain.Repo, userQuery string) (string, error) {
	args := m.Called(ctx, repos, userQuery)
	return args.String(0), args.Error(1)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Save(ctx context.Context, repo *domain.Repo) error {
	args := m.Called(ctx, repo)
	return args.Error(0)
}

func (m *MockRepository) Exists(ctx context.Context, fullName string) (bool, error) {
	args := m.Called(ctx, fullName)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) Search(ctx context.Context, query string) ([]*domain.Repo, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]*domain.Repo), args.Error(1)
}

func (m *MockRepository) GetAllCandidates(ctx context.Context) ([]*domain.Repo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.Repo), args.Error(1)
}

func (m *MockRepository) GetUnnotifiedRisky(ctx context.Context) ([]*domain.Repo, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*domain.Repo), args.Error(1)
}

func (m *MockRepository) MarkAsNotified(ctx context.Context, fullName string) error {
	args := m.Called(ctx, fullName)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, repo *domain.Repo) error {
	args := m.Called(ctx, repo)
	return args.Error(0)
}

func testAnalyzedRepo() *domain.Repo {
	return &domain.Repo{
		FullName: "anthropics/skills",
		Owner:    "anthropics",
		Name:     "skills",
		URL:      "https://github.com/anthropics/skills",
		Stars:    500,
		Language: "Python",
		Category: domain.CategorySkillCollection,
		Signals:  []string{domain.SignalHasScripts, domain.SignalSpecCompliant},
	}
}

func testRiskyRepo() *domain.Repo {
	return &domain.Repo{
		FullName: "acme/disk-cleaner",
		Owner:    "acme",
		Name:     "disk-cleaner",
		URL:      "https://github.com/acme/disk-cleaner",
		Stars:    120,
		Language: "Shell",
		Category: domain.CategorySkill,
		Signals:  []string{domain.SignalHasScripts, domain.SignalRmRf},
	}
}

func testScanOptions(t *testing.T) ScanOptions {
	t.Helper()
	return ScanOptions{
		Topic:       "agent-skills",
		MinStars:    0,
		MaxRepos:    200,
		OutputPath:  filepath.Join(t.TempDir(), "README.md"),
		Concurrency: 3,
	}
}

func TestNewRadarService(t *testing.T) {
	mockScouter := new(MockScouter)
	mockAnalyzer := new(MockAnalyzer)
	mockReporter := new(MockReporter)
	mockRepository := new(MockRepository)
	mockAppraiser := new(MockAppraiser)
	mockNotifier := new(MockNotifier)

	service := NewRadarService(
		mockScouter,
		mockAnalyzer,
		mockReporter,
		mockRepository,
		mockAppraiser,
		mockNotifier,
	)

	assert.NotNil(t, service)
	assert.Equal(t, mockScouter, service.scouter)
	assert.Equal(t, mockAnalyzer, service.analyzer)
	assert.Equal(t, mockReporter, service.reporter)
	assert.Equal(t, mockRepository, service.repoStore)
	assert.Equal(t, mockAppraiser, service.appraiser)
	assert.Equal(t, mockNotifier, service.notifier)
}

// 表驱动测试用例
func TestRadarService_ExecuteScanCycle(t *testing.T) {
	repoA := testAnalyzedRepo()
	riskyB := testRiskyRepo()

	tests := []struct {
		name        string
		setupMocks  func(*MockScouter, *MockAnalyzer, *MockReporter, *MockRepository, *MockAppraiser, *MockNotifier)
		expectError bool
		errContains string
		wantReport  string // 非空时断言报告文件内容
	}{
		{
			name: "正常流程: 搜索→分析→点评→报告→归档→告警",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
				ap.On("Appraise", mock.Anything, repoA).Return(repoA, nil)
				rp.On("Render", mock.Anything).Return("# Awesome Agent Skills\n")
				st.On("Save", mock.Anything, repoA).Return(nil)
				st.On("GetUnnotifiedRisky", mock.Anything).Return([]*domain.Repo{riskyB}, nil)
				no.On("Notify", mock.Anything, riskyB).Return(nil)
				st.On("MarkAsNotified", mock.Anything, "acme/disk-cleaner").Return(nil)
			},
			expectError: false,
			wantReport:  "# Awesome Agent Skills\n",
		},
		{
			name: "搜索失败时直接返回错误",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				an.On("SetMaxGoroutines", 3).Return()
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).
					Return([]*domain.Repo{}, errors.New("network error"))
			},
			expectError: true,
			errContains: "搜索仓库失败",
		},
		{
			name: "分析中断时仍然产出报告",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).
					Return([]*domain.Repo{}, context.DeadlineExceeded)
				rp.On("Render", mock.Anything).Return("# Awesome Agent Skills (empty)\n")
				st.On("GetUnnotifiedRisky", mock.Anything).Return([]*domain.Repo{}, nil)
			},
			expectError: false,
			wantReport:  "# Awesome Agent Skills (empty)\n",
		},
		{
			name: "AI 点评失败不影响报告与归档",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
				ap.On("Appraise", mock.Anything, repoA).
					Return(repoA, errors.New("quota exceeded"))
				rp.On("Render", mock.Anything).Return("# report\n")
				st.On("Save", mock.Anything, repoA).Return(nil)
				st.On("GetUnnotifiedRisky", mock.Anything).Return([]*domain.Repo{}, nil)
			},
			expectError: false,
			wantReport:  "# report\n",
		},
		{
			name: "归档失败不阻塞后续仓库",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).
					Return([]*domain.Repo{repoA, riskyB}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).
					Return([]*domain.Repo{repoA, riskyB}, nil)
				ap.On("Appraise", mock.Anything, mock.Anything).Return(repoA, nil)
				rp.On("Render", mock.Anything).Return("# report\n")
				st.On("Save", mock.Anything, repoA).Return(errors.New("db down"))
				st.On("Save", mock.Anything, riskyB).Return(nil)
				st.On("GetUnnotifiedRisky", mock.Anything).Return([]*domain.Repo{}, nil)
			},
			expectError: false,
		},
		{
			name: "推送失败时不标记已告警",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
				ap.On("Appraise", mock.Anything, repoA).Return(repoA, nil)
				rp.On("Render", mock.Anything).Return("# report\n")
				st.On("Save", mock.Anything, repoA).Return(nil)
				st.On("GetUnnotifiedRisky", mock.Anything).Return([]*domain.Repo{riskyB}, nil)
				no.On("Notify", mock.Anything, riskyB).Return(errors.New("webhook down"))
				// 注意: 推送失败后不应调用 MarkAsNotified,这里故意不设置它
			},
			expectError: false,
		},
		{
			name: "告警查询失败只记日志",
			setupMocks: func(sc *MockScouter, an *MockAnalyzer, rp *MockReporter, st *MockRepository, ap *MockAppraiser, no *MockNotifier) {
				sc.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
				an.On("SetMaxGoroutines", 3).Return()
				an.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
				ap.On("Appraise", mock.Anything, repoA).Return(repoA, nil)
				rp.On("Render", mock.Anything).Return("# report\n")
				st.On("Save", mock.Anything, repoA).Return(nil)
				st.On("GetUnnotifiedRisky", mock.Anything).
					Return([]*domain.Repo{}, errors.New("db down"))
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockScouter := new(MockScouter)
			mockAnalyzer := new(MockAnalyzer)
			mockReporter := new(MockReporter)
			mockRepository := new(MockRepository)
			mockAppraiser := new(MockAppraiser)
			mockNotifier := new(MockNotifier)

			tt.setupMocks(mockScouter, mockAnalyzer, mockReporter, mockRepository, mockAppraiser, mockNotifier)

			service := NewRadarService(
				mockScouter,
				mockAnalyzer,
				mockReporter,
				mockRepository,
				mockAppraiser,
				mockNotifier,
			)

			opts := testScanOptions(t)
			err := service.ExecuteScanCycle(context.Background(), opts)

			if tt.expectError {
				assert.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
			} else {
				assert.NoError(t, err)
			}

			if tt.wantReport != "" {
				written, readErr := os.ReadFile(opts.OutputPath)
				require.NoError(t, readErr)
				assert.Equal(t, tt.wantReport, string(written))
			}

			mockScouter.AssertExpectations(t)
			mockAnalyzer.AssertExpectations(t)
			mockReporter.AssertExpectations(t)
			mockRepository.AssertExpectations(t)
			mockAppraiser.AssertExpectations(t)
			mockNotifier.AssertExpectations(t)
		})
	}
}

// 数据库、Gemini、Webhook 都没配置时,扫描仍要完整跑完报告阶段
func TestRadarService_ExecuteScanCycle_WithoutOptionalDeps(t *testing.T) {
	repoA := testAnalyzedRepo()

	mockScouter := new(MockScouter)
	mockAnalyzer := new(MockAnalyzer)
	mockReporter := new(MockReporter)
	mockScouter.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
	mockAnalyzer.On("SetMaxGoroutines", 3).Return()
	mockAnalyzer.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
	mockReporter.On("Render", mock.Anything).Return("# minimal\n")

	service := NewRadarService(mockScouter, mockAnalyzer, mockReporter, nil, nil, nil)

	opts := testScanOptions(t)
	err := service.ExecuteScanCycle(context.Background(), opts)

	assert.NoError(t, err)
	written, readErr := os.ReadFile(opts.OutputPath)
	require.NoError(t, readErr)
	assert.Equal(t, "# minimal\n", string(written))

	mockScouter.AssertExpectations(t)
	mockAnalyzer.AssertExpectations(t)
	mockReporter.AssertExpectations(t)
}

func TestRadarService_ExecuteScanCycle_Limit(t *testing.T) {
	first := testAnalyzedRepo()
	second := testRiskyRepo()
	third := &domain.Repo{FullName: "dev/extra", Stars: 10}

	mockScouter := new(MockScouter)
	mockAnalyzer := new(MockAnalyzer)
	mockReporter := new(MockReporter)
	mockScouter.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).
		Return([]*domain.Repo{first, second, third}, nil)
	mockAnalyzer.On("SetMaxGoroutines", 3).Return()
	// -limit 2 之后分析器只应收到前两个
	mockAnalyzer.On("AnalyzeRepos", mock.Anything, mock.MatchedBy(func(repos []*domain.Repo) bool {
		return len(repos) == 2 && repos[0].FullName == "anthropics/skills" && repos[1].FullName == "acme/disk-cleaner"
	})).Return([]*domain.Repo{first, second}, nil)
	mockReporter.On("Render", mock.Anything).Return("# limited\n")

	service := NewRadarService(mockScouter, mockAnalyzer, mockReporter, nil, nil, nil)

	opts := testScanOptions(t)
	opts.Limit = 2
	err := service.ExecuteScanCycle(context.Background(), opts)

	assert.NoError(t, err)
	mockAnalyzer.AssertExpectations(t)
}

func TestRadarService_ExecuteScanCycle_LabeledDump(t *testing.T) {
	repoA := testAnalyzedRepo()

	mockScouter := new(MockScouter)
	mockAnalyzer := new(MockAnalyzer)
	mockReporter := new(MockReporter)
	mockScouter.On("ScoutTopic", mock.Anything, "agent-skills", 0, 200).Return([]*domain.Repo{repoA}, nil)
	mockAnalyzer.On("SetMaxGoroutines", 3).Return()
	mockAnalyzer.On("AnalyzeRepos", mock.Anything, mock.Anything).Return([]*domain.Repo{repoA}, nil)
	mockReporter.On("Render", mock.Anything).Return("# report\n")

	service := NewRadarService(mockScouter, mockAnalyzer, mockReporter, nil, nil, nil)

	opts := testScanOptions(t)
	opts.LabeledPath = filepath.Join(t.TempDir(), "labeled.json")
	err := service.ExecuteScanCycle(context.Background(), opts)
	require.NoError(t, err)

	data, err := os.ReadFile(opts.LabeledPath)
	require.NoError(t, err)

	var dataset domain.Dataset
	require.NoError(t, json.Unmarshal(data, &dataset))
	assert.Equal(t, "agent-skills", dataset.Tag)
	assert.Equal(t, 1, dataset.Total)
	require.Len(t, dataset.Repos, 1)
	assert.Equal(t, "anthropics/skills", dataset.Repos[0].FullName)
	assert.Equal(t, []string{domain.SignalHasScripts, domain.SignalSpecCompliant}, dataset.Repos[0].Signals)
	assert.WithinDuration(t, time.Now().UTC(), dataset.AnalyzedAt, time.Minute)
}

func TestRadarService_ExecuteSearch(t *testing.T) {
	t.Run("正常问答", func(t *testing.T) {
		repoA := testAnalyzedRepo()
		mockRepository := new(MockRepository)
		mockAppraiser := new(MockAppraiser)
		mockRepository.On("GetAllCandidates", mock.Anything).Return([]*domain.Repo{repoA}, nil)
		mockAppraiser.On("SemanticSearch", mock.Anything, []*domain.Repo{repoA}, "找一个能处理 PDF 的技能").
			Return("推荐 anthropics/skills", nil)

		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter),
			mockRepository, mockAppraiser, nil)

		answer, err := service.ExecuteSearch(context.Background(), "找一个能处理 PDF 的技能")

		assert.NoError(t, err)
		assert.Equal(t, "推荐 anthropics/skills", answer)
		mockRepository.AssertExpectations(t)
		mockAppraiser.AssertExpectations(t)
	})

	t.Run("数据库未配置", func(t *testing.T) {
		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter),
			nil, new(MockAppraiser), nil)

		answer, err := service.ExecuteSearch(context.Background(), "随便问问")

		assert.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeInvalidInput))
		assert.Contains(t, err.Error(), "DATABASE_DSN")
		assert.Empty(t, answer)
	})

	t.Run("Gemini 未配置", func(t *testing.T) {
		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter),
			new(MockRepository), nil, nil)

		answer, err := service.ExecuteSearch(context.Background(), "随便问问")

		assert.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeInvalidInput))
		assert.Contains(t, err.Error(), "GEMINI_API_KEY")
		assert.Empty(t, answer)
	})

	t.Run("归档读取失败", func(t *testing.T) {
		mockRepository := new(MockRepository)
		mockRepository.On("GetAllCandidates", mock.Anything).
			Return([]*domain.Repo{}, errors.New("connection refused"))

		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter),
			mockRepository, new(MockAppraiser), nil)

		answer, err := service.ExecuteSearch(context.Background(), "随便问问")

		assert.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeDatabase))
		assert.Empty(t, answer)
	})
}

func TestRadarService_RenderFromSnapshot(t *testing.T) {
	t.Run("从标注数据集重新渲染报告", func(t *testing.T) {
		dataset := &domain.Dataset{
			Tag:        "agent-skills",
			AnalyzedAt: time.Date(2025, 8, 25, 9, 30, 0, 0, time.UTC),
			Total:      1,
			Repos:      []*domain.Repo{testAnalyzedRepo()},
		}
		data, err := json.Marshal(dataset)
		require.NoError(t, err)

		dir := t.TempDir()
		labeledPath := filepath.Join(dir, "labeled.json")
		outputPath := filepath.Join(dir, "README.md")
		require.NoError(t, os.WriteFile(labeledPath, data, 0o644))

		mockReporter := new(MockReporter)
		mockReporter.On("Render", mock.MatchedBy(func(d *domain.Dataset) bool {
			return d.Tag == "agent-skills" && d.Total == 1 && len(d.Repos) == 1
		})).Return("# rendered from snapshot\n")

		service := NewRadarService(new(MockScouter), new(MockAnalyzer), mockReporter, nil, nil, nil)

		err = service.RenderFromSnapshot(labeledPath, outputPath)
		require.NoError(t, err)

		written, err := os.ReadFile(outputPath)
		require.NoError(t, err)
		assert.Equal(t, "# rendered from snapshot\n", string(written))
		mockReporter.AssertExpectations(t)
	})

	t.Run("标注数据集不存在", func(t *testing.T) {
		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter), nil, nil, nil)

		err := service.RenderFromSnapshot(filepath.Join(t.TempDir(), "missing.json"), "README.md")

		assert.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeNotFound))
	})

	t.Run("标注数据集不是合法 JSON", func(t *testing.T) {
		dir := t.TempDir()
		labeledPath := filepath.Join(dir, "labeled.json")
		require.NoError(t, os.WriteFile(labeledPath, []byte("not json at all"), 0o644))

		service := NewRadarService(new(MockScouter), new(MockAnalyzer), new(MockReporter), nil, nil, nil)

		err := service.RenderFromSnapshot(labeledPath, filepath.Join(dir, "README.md"))

		assert.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeValidation))
	})
}
