package chat

const titleSystemPrompt = `당신은 대화 내용을 분석하여 간결하고 명확한 제목을 만드는 전문가입니다. 제목은 반드시 한국어로 작성하며, 10-20자 이내로 대화의 핵심 주제를 담아야 합니다. 제목만 출력하고 따옴표나 다른 설명은 절대 포함하지 마세요.`

const titleUserPrompt = "다음 대화의 핵심 주제를 파악하여 간결한 제목을 만들어주세요:\n\n%s\n\n제목:"

const summaryPrompt = `You summarize conversations between a user and an AI assistant.

Read the whole conversation below and write a structured summary in Korean. Always produce all six sections, even for a short conversation about a single topic.

#### 1) 대화 주제 개요
- The topics that came up.

#### 2) 주요 요청 & 작업들
- What the user asked for. If nothing, write "특별한 요청이나 작업 없음".

#### 3) 생성된 문서 / 코드 / 템플릿 / 산출물
- What the assistant produced. If nothing, write "특별한 산출물 없음".

#### 4) 의사결정 및 합의된 방향
- Decisions or agreements. If none, write "특별한 의사결정 없음".

#### 5) 미해결 사항 / Follow-up 필요 항목
- Open items and next steps. If none, write "미해결 사항 없음".

#### 6) 사용자 성향 / 패턴
- Preferences or patterns of the user. If there is not enough data, write "추가 관찰 필요".

Rules:
- Write only in Korean, using Markdown headers and bullet points.
- Be concise but complete, and state explicitly when a section has no content.
- Never refuse or call the input incomplete.

[Conversation]

%s`
