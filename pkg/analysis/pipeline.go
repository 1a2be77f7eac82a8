package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bussola-ai/bussola/pkg/cache"
	"github.com/bussola-ai/bussola/pkg/events"
	"github.com/bussola-ai/bussola/pkg/llm"
	"github.com/bussola-ai/bussola/pkg/llm/sanitize"
	"github.com/bussola-ai/bussola/pkg/models"
)

// promptVersion is folded into every stage fingerprint so that a prompt
// change invalidates cached stage results.
const promptVersion = "v1"

// maxFollowUps bounds stage 2's parallel follow-up calls.
const maxFollowUps = 3

// ModelSet names the model for each price class.
type ModelSet struct {
	Cheap   string
	Mid     string
	Premium string
}

// DefaultModelSet matches the default price table.
func DefaultModelSet() ModelSet {
	return ModelSet{
		Cheap:   "claude-3-5-haiku-latest",
		Mid:     "claude-sonnet-4-20250514",
		Premium: "claude-opus-4-20250514",
	}
}

// ProgressSink receives stage progress. Satisfied by events.Publisher.
type ProgressSink interface {
	StageStarted(ctx context.Context, submissionID int64, payload events.StageStartedPayload) error
	StageComplete(ctx context.Context, submissionID int64, payload events.StageCompletePayload) error
}

// Request is one pipeline invocation.
type Request struct {
	SubmissionID int64
	Company      string
	Industry     string
	Challenge    string
	Fields       map[string]any

	// ForceFrom invalidates the cache for stages >= its value on a
	// reprocess. Zero means every stage may use the cache.
	ForceFrom int
}

// Result is the pipeline outcome.
type Result struct {
	Report       json.RawMessage
	Stages       []models.AnalysisStageResult
	Tier         models.DataQualityTier
	TotalCostUSD float64
}

// StageError marks which stage killed the pipeline.
type StageError struct {
	StageID   int
	StageName string
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.StageID, e.StageName, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs the six analysis stages for one submission.
type Pipeline struct {
	llm       *llm.Client
	stages    *cache.StageCache
	sink      ProgressSink
	models    ModelSet
	sanitizer *sanitize.Sanitizer
	now       func() time.Time
}

// NewPipeline wires the pipeline.
func NewPipeline(client *llm.Client, stageCache *cache.StageCache, sink ProgressSink, modelSet ModelSet) *Pipeline {
	if modelSet.Cheap == "" {
		modelSet = DefaultModelSet()
	}
	return &Pipeline{
		llm:       client,
		stages:    stageCache,
		sink:      sink,
		models:    modelSet,
		sanitizer: sanitize.New(),
		now:       time.Now,
	}
}

// Run executes stages 1..6 strictly in order. Any stage failure is
// fatal and reported with its stage id; cache problems are not.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	start := p.now()
	tier := ComputeTier(req.Fields)
	res := &Result{Tier: tier}

	defs := []stageDef{
		{ID: StageExtraction, Name: StageName(StageExtraction), Timeout: stageTimeout, EstCost: 0.002, Run: p.runExtraction},
		{ID: StageGapAnalysis, Name: StageName(StageGapAnalysis), Timeout: stageTimeout, EstCost: 0.005, Run: p.runGapAnalysis},
		{ID: StageStrategy, Name: StageName(StageStrategy), Timeout: strategyStageTimeout, EstCost: 0.15, Run: p.runStrategy},
		{ID: StageCompetitive, Name: StageName(StageCompetitive), Timeout: stageTimeout, EstCost: 0.05, Run: p.runCompetitive},
		{ID: StageRiskPriority, Name: StageName(StageRiskPriority), Timeout: stageTimeout, EstCost: 0.04, Run: p.runRiskPriority},
		{ID: StagePolish, Name: StageName(StagePolish), Timeout: stageTimeout, EstCost: 0.01, Run: p.runPolish},
	}

	outputs := make(map[int]json.RawMessage, len(defs))
	for _, def := range defs {
		input := p.stageInput(req, tier, def.ID, outputs)
		result, err := p.runStage(ctx, req, def, input, start, res)
		if err != nil {
			return res, &StageError{StageID: def.ID, StageName: def.Name, Err: err}
		}
		outputs[def.ID] = result.Output
		res.Stages = append(res.Stages, *result)
	}

	report, err := assembleReport(req, res, p.now().UTC())
	if err != nil {
		return res, &StageError{StageID: StagePolish, StageName: StageName(StagePolish), Err: err}
	}
	res.Report = report
	return res, nil
}

// stageInput builds the uniform input for one stage from the fixed
// wiring between stages.
func (p *Pipeline) stageInput(req Request, tier models.DataQualityTier, stageID int, outputs map[int]json.RawMessage) StageInput {
	kwargs := map[string]any{}
	switch stageID {
	case StageExtraction:
		kwargs[kwargFields] = req.Fields
	case StageGapAnalysis:
		kwargs[kwargExtracted] = rawKwarg(outputs[StageExtraction])
	case StageStrategy:
		kwargs[kwargExtracted] = rawKwarg(outputs[StageGapAnalysis])
		kwargs[kwargChallenge] = req.Challenge
		kwargs[kwargTier] = string(tier)
		kwargs[kwargSections] = SectionsForTier(tier)
	case StageCompetitive:
		kwargs[kwargExtracted] = rawKwarg(outputs[StageExtraction])
		kwargs[kwargStrategy] = rawKwarg(outputs[StageStrategy])
	case StageRiskPriority:
		kwargs[kwargStrategy] = rawKwarg(outputs[StageStrategy])
	case StagePolish:
		kwargs[kwargStrategy] = rawKwarg(outputs[StageStrategy])
		kwargs[kwargCompetitive] = rawKwarg(outputs[StageCompetitive])
		kwargs[kwargRisk] = rawKwarg(outputs[StageRiskPriority])
	}
	return StageInput{Company: req.Company, Industry: req.Industry, Kwargs: kwargs}
}

// runStage wraps one stage with the cache, progress events and
// accounting. The cache-miss fallback receives the exact same input
// that was fingerprinted.
func (p *Pipeline) runStage(ctx context.Context, req Request, def stageDef, input StageInput, pipelineStart time.Time, res *Result) (*models.AnalysisStageResult, error) {
	p.emitStarted(ctx, req.SubmissionID, def, pipelineStart, res)

	cacheKey, keyErr := cache.StageKey(def.Name+"@"+promptVersion, input)
	if keyErr != nil {
		slog.Warn("Stage fingerprint failed, skipping cache", "stage", def.Name, "error", keyErr)
	}

	useCache := keyErr == nil && (req.ForceFrom == 0 || def.ID < req.ForceFrom)
	if useCache {
		if cached := p.stages.Get(ctx, def.Name, cacheKey, def.EstCost); cached != nil {
			slog.Info("Stage cache hit", "submission_id", req.SubmissionID, "stage", def.Name)
			p.emitComplete(ctx, req.SubmissionID, def, cached, pipelineStart, res)
			return cached, nil
		}
	}

	stageCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	stageStart := p.now()
	output, usage, err := def.Run(stageCtx, input)
	if usage != nil {
		res.TotalCostUSD += usage.CostUSD
	}
	if err != nil {
		return nil, err
	}

	result := &models.AnalysisStageResult{
		StageID:     def.ID,
		StageName:   def.Name,
		Output:      output,
		Fingerprint: cacheKey,
		Model:       usage.Model,
		TokensIn:    usage.TokensIn,
		TokensOut:   usage.TokensOut,
		CostUSD:     usage.CostUSD,
		DurationMS:  time.Since(stageStart).Milliseconds(),
		CompletedAt: p.now().UTC(),
	}
	if keyErr == nil {
		p.stages.Put(ctx, cacheKey, result)
	}
	p.emitComplete(ctx, req.SubmissionID, def, result, pipelineStart, res)
	return result, nil
}

// --- Stage implementations ---

func (p *Pipeline) runExtraction(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildExtractionPrompt(p.sanitizer, in)
	return p.call(ctx, p.models.Cheap, system, user, extractionSchema, 4096)
}

// runGapAnalysis asks which follow-up queries are worth issuing, runs
// up to three of them in parallel, and augments the extracted data.
func (p *Pipeline) runGapAnalysis(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildGapQueryPrompt(p.sanitizer, in)
	output, usage, err := p.call(ctx, p.models.Cheap, system, user, gapQuerySchema, 1024)
	if err != nil {
		return nil, usage, err
	}

	var plan struct {
		FollowUpQueries []string `json:"follow_up_queries"`
	}
	if err := json.Unmarshal(output, &plan); err != nil {
		return nil, usage, fmt.Errorf("gap plan parse: %w", err)
	}
	if len(plan.FollowUpQueries) > maxFollowUps {
		plan.FollowUpQueries = plan.FollowUpQueries[:maxFollowUps]
	}

	type followUp struct {
		Query  string `json:"consulta"`
		Answer string `json:"resposta"`
	}
	answers := make([]followUp, len(plan.FollowUpQueries))
	usages := make([]*stageUsage, len(plan.FollowUpQueries))

	g, gctx := errgroup.WithContext(ctx)
	for i, query := range plan.FollowUpQueries {
		g.Go(func() error {
			system, user := buildGapAnswerPrompt(p.sanitizer, in, query)
			out, u, err := p.call(gctx, p.models.Cheap, system, user, gapAnswerSchema, 512)
			usages[i] = u
			if err != nil {
				// A follow-up is advisory; its failure must not kill the stage.
				slog.Warn("Follow-up query failed", "query", query, "error", err)
				answers[i] = followUp{Query: query}
				return nil
			}
			var parsed struct {
				Answer string `json:"answer"`
			}
			_ = json.Unmarshal(out, &parsed)
			answers[i] = followUp{Query: query, Answer: parsed.Answer}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, usage, err
	}
	for _, u := range usages {
		if u != nil {
			usage.CostUSD += u.CostUSD
			usage.TokensIn += u.TokensIn
			usage.TokensOut += u.TokensOut
		}
	}

	augmented := map[string]any{
		"extracted_data":           rawKwarg(jsonField(in, kwargExtracted)),
		"consultas_complementares": answers,
	}
	merged, err := json.Marshal(augmented)
	if err != nil {
		return nil, usage, fmt.Errorf("marshal augmented extraction: %w", err)
	}
	return merged, usage, nil
}

func (p *Pipeline) runStrategy(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildStrategyPrompt(p.sanitizer, in)
	return p.call(ctx, p.models.Premium, system, user, strategySchema, 8192)
}

func (p *Pipeline) runCompetitive(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildCompetitivePrompt(p.sanitizer, in)
	return p.call(ctx, p.models.Mid, system, user, competitiveSchema, 4096)
}

func (p *Pipeline) runRiskPriority(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildRiskPrompt(p.sanitizer, in)
	return p.call(ctx, p.models.Premium, system, user, riskSchema, 4096)
}

func (p *Pipeline) runPolish(ctx context.Context, in StageInput) (json.RawMessage, *stageUsage, error) {
	system, user := buildPolishPrompt(p.sanitizer, in)
	return p.call(ctx, p.models.Cheap, system, user, polishSchema, 8192)
}

// call issues one structured LLM call and folds the accounting.
func (p *Pipeline) call(ctx context.Context, model, system, user string, schema *llm.Schema, maxTokens int) (json.RawMessage, *stageUsage, error) {
	res, err := p.llm.Call(ctx, llm.Request{
		Model:     model,
		System:    system,
		User:      user,
		MaxTokens: maxTokens,
		Schema:    schema,
	})
	usage := &stageUsage{Model: model}
	if res != nil {
		usage.TokensIn = res.TokensIn
		usage.TokensOut = res.TokensOut
		usage.CostUSD = res.CostUSD
	}
	if err != nil {
		return nil, usage, err
	}
	output, err := json.Marshal(res.JSON)
	if err != nil {
		return nil, usage, fmt.Errorf("marshal stage output: %w", err)
	}
	return output, usage, nil
}

// --- Progress events ---

func (p *Pipeline) emitStarted(ctx context.Context, submissionID int64, def stageDef, start time.Time, res *Result) {
	if p.sink == nil {
		return
	}
	err := p.sink.StageStarted(ctx, submissionID, events.StageStartedPayload{
		StageID:      def.ID,
		StageName:    def.Name,
		TotalCostUSD: res.TotalCostUSD,
		ElapsedMS:    time.Since(start).Milliseconds(),
	})
	if err != nil {
		slog.Warn("Failed to publish stage_started", "stage", def.Name, "error", err)
	}
}

func (p *Pipeline) emitComplete(ctx context.Context, submissionID int64, def stageDef, result *models.AnalysisStageResult, start time.Time, res *Result) {
	if p.sink == nil {
		return
	}
	err := p.sink.StageComplete(ctx, submissionID, events.StageCompletePayload{
		StageID:      def.ID,
		StageName:    def.Name,
		Cached:       result.Cached,
		DurationMS:   result.DurationMS,
		CostUSD:      result.CostUSD,
		TotalCostUSD: res.TotalCostUSD,
		ElapsedMS:    time.Since(start).Milliseconds(),
	})
	if err != nil {
		slog.Warn("Failed to publish stage_complete", "stage", def.Name, "error", err)
	}
}

// --- helpers ---

// rawKwarg converts a stage output into a kwarg value that serializes
// as the object itself rather than base64 bytes.
func rawKwarg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return map[string]any{}
	}
	return v
}

func jsonField(in StageInput, key string) json.RawMessage {
	v, ok := in.Kwargs[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
